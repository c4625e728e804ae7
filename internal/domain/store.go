package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MatchStore persists match markets.
type MatchStore interface {
	Create(ctx context.Context, m Match) error
	GetByID(ctx context.Context, id string) (Match, error)
	List(ctx context.Context, opts ListOpts) ([]Match, error)
	MarkSettled(ctx context.Context, id, winningScore string) error
	Count(ctx context.Context) (int64, error)
}

// OutcomeStore persists score outcomes and their reconciliation cursors.
type OutcomeStore interface {
	CreateBatch(ctx context.Context, outcomes []Outcome) error
	GetByID(ctx context.Context, id string) (Outcome, error)
	GetByMatchAndScore(ctx context.Context, matchID, score string) (Outcome, error)
	ListByMatch(ctx context.Context, matchID string) ([]Outcome, error)
	// ListMonitored returns every outcome with a non-empty deposit address,
	// i.e. the set of addresses the monitor loop must reconcile.
	ListMonitored(ctx context.Context) ([]Outcome, error)
	UpdateCursor(ctx context.Context, id, cursor string) error
}

// Ledger is the authoritative record of committed bet transactions.
type Ledger interface {
	// Exists reports whether a transaction hash has already been committed.
	// This check is the sole source of truth for de-duplication.
	Exists(ctx context.Context, hash string) (bool, error)

	// Commit writes the immutable transaction record and increments the
	// owning outcome's ticket count as one atomic unit. A duplicate hash
	// returns ErrDuplicateTransaction and leaves all state untouched.
	Commit(ctx context.Context, tx BetTransaction) error

	ListByOutcome(ctx context.Context, outcomeID string) ([]BetTransaction, error)
	ListByAddress(ctx context.Context, depositAddress string, opts ListOpts) ([]BetTransaction, error)
	// ListBefore returns committed transactions older than the cutoff, for
	// audit export.
	ListBefore(ctx context.Context, before time.Time) ([]BetTransaction, error)
}

// RateStore persists the append-only exchange-rate history.
type RateStore interface {
	Append(ctx context.Context, r ExchangeRate) error
	// Latest returns the most recent snapshot, or ErrNotFound when no
	// snapshot has ever been recorded.
	Latest(ctx context.Context) (ExchangeRate, error)
	// DeleteBefore prunes snapshots older than the cutoff, keeping the most
	// recent one regardless of age. Returns the number deleted.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	ListBefore(ctx context.Context, before time.Time) ([]ExchangeRate, error)
}
