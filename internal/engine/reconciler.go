// Package engine implements the transaction reconciliation and payout cores.
// The reconciler turns raw indexer output into exactly-once ticket credits;
// the payout calculator splits a fixed prize pool across winning addresses.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/scorechain/bchbet/internal/domain"
)

var satoshisPerBCH = decimal.NewFromInt(domain.SatoshisPerBCH)

// CandidateLister is the indexer capability the reconciler depends on: list
// recent incoming transactions for an address. cursorHint is the hash of the
// last reconciled transaction and may be used by the adapter to bound its
// query; adapters are free to ignore it and re-deliver a superset.
type CandidateLister interface {
	ListCandidates(ctx context.Context, address, cursorHint string) ([]domain.CandidateTransaction, error)
}

// CursorStore persists the per-outcome reconciliation cursor.
type CursorStore interface {
	UpdateCursor(ctx context.Context, outcomeID, cursor string) error
}

// EventSink receives one event per committed transaction. Delivery is best
// effort; sink failures never undo a commit.
type EventSink interface {
	TransactionAccepted(ctx context.Context, evt domain.TransactionEvent)
}

// Result summarizes one reconciliation pass over one outcome's address.
type Result struct {
	Committed          int
	TicketsCredited    int64
	SkippedDuplicate   int
	SkippedUnconfirmed int
	SkippedNoOutput    int
	SkippedDust        int
	CursorAdvanced     bool
	NewCursor          string
}

// Skipped returns the total number of candidates skipped in the pass.
func (r Result) Skipped() int {
	return r.SkippedDuplicate + r.SkippedUnconfirmed + r.SkippedNoOutput + r.SkippedDust
}

// Reconciler converts confirmed incoming payments into ticket credits,
// exactly once per transaction hash. It is safe to run repeatedly over the
// same candidate set; only the caller-enforced rule applies: a single outcome
// must never be reconciled concurrently with itself.
type Reconciler struct {
	lister         CandidateLister
	ledger         domain.Ledger
	cursors        CursorStore
	events         EventSink
	ticketValueUSD decimal.Decimal
	logger         *slog.Logger
}

// NewReconciler creates a Reconciler. events may be nil when no fan-out is
// wanted (e.g. in batch backfills).
func NewReconciler(
	lister CandidateLister,
	ledger domain.Ledger,
	cursors CursorStore,
	events EventSink,
	ticketValueUSD decimal.Decimal,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		lister:         lister,
		ledger:         ledger,
		cursors:        cursors,
		events:         events,
		ticketValueUSD: ticketValueUSD,
		logger:         logger.With(slog.String("component", "reconciler")),
	}
}

// Reconcile runs one pass over the outcome's deposit address: it fetches
// candidates from the indexer, filters out everything already committed,
// unconfirmed, or below one ticket, commits the rest through the ledger, and
// advances the cursor to the newest committed hash.
//
// The cursor short-circuit assumes best-effort newest-first ordering from the
// adapter and exists purely to bound the scan; correctness rests on the
// ledger's hash check, which runs for every candidate that reaches commit.
// On success the outcome's TicketCount and Cursor are updated in place to
// mirror the persisted state.
func (r *Reconciler) Reconcile(ctx context.Context, outcome *domain.Outcome, rate domain.ExchangeRate) (Result, error) {
	var res Result

	if !rate.Usable() {
		return res, domain.ErrRateUnavailable
	}

	requiredBCH := r.ticketValueUSD.Div(rate.Rate)
	if !requiredBCH.IsPositive() {
		r.logger.Warn("degenerate ticket price, skipping pass",
			slog.String("outcome_id", outcome.ID),
			slog.String("rate", rate.Rate.String()),
		)
		return res, domain.ErrRateUnavailable
	}

	candidates, err := r.lister.ListCandidates(ctx, outcome.DepositAddress, outcome.Cursor)
	if err != nil {
		return res, fmt.Errorf("engine: list candidates for %s: %w", outcome.DepositAddress, err)
	}

	for _, cand := range candidates {
		if outcome.Cursor != "" && cand.Hash == outcome.Cursor {
			break
		}

		exists, err := r.ledger.Exists(ctx, cand.Hash)
		if err != nil {
			return res, fmt.Errorf("engine: ledger lookup %s: %w", cand.Hash, err)
		}
		if exists {
			res.SkippedDuplicate++
			continue
		}

		if !cand.Confirmed() {
			res.SkippedUnconfirmed++
			continue
		}

		if cand.AddressSatoshi <= 0 {
			res.SkippedNoOutput++
			continue
		}

		amountBCH := decimal.NewFromInt(cand.AddressSatoshi).Div(satoshisPerBCH)
		tickets := amountBCH.Div(requiredBCH).Floor().IntPart()
		if tickets < 1 {
			res.SkippedDust++
			r.logger.Debug("sub-minimum deposit",
				slog.String("tx_hash", cand.Hash),
				slog.String("amount_bch", amountBCH.String()),
				slog.String("required_bch", requiredBCH.String()),
			)
			continue
		}

		outcomeID := outcome.ID
		tx := domain.BetTransaction{
			Hash:           cand.Hash,
			DepositAddress: outcome.DepositAddress,
			OriginAddress:  cand.OriginAddress,
			AmountSatoshi:  cand.AddressSatoshi,
			OutcomeID:      &outcomeID,
			Tickets:        tickets,
			Timestamp:      cand.Timestamp,
		}

		if err := r.ledger.Commit(ctx, tx); err != nil {
			if errors.Is(err, domain.ErrDuplicateTransaction) {
				// Lost a race with a prior pass or another process; the
				// transaction is credited exactly once either way.
				res.SkippedDuplicate++
				continue
			}
			return res, fmt.Errorf("engine: commit %s: %w", cand.Hash, err)
		}

		outcome.TicketCount += tickets
		res.Committed++
		res.TicketsCredited += tickets
		if res.NewCursor == "" {
			res.NewCursor = cand.Hash
		}

		r.logger.Info("transaction committed",
			slog.String("tx_hash", cand.Hash),
			slog.String("deposit_address", outcome.DepositAddress),
			slog.Int64("amount_satoshi", cand.AddressSatoshi),
			slog.Int64("tickets", tickets),
			slog.String("score", outcome.Score),
		)

		if r.events != nil {
			r.events.TransactionAccepted(ctx, domain.TransactionEvent{
				Hash:           cand.Hash,
				DepositAddress: outcome.DepositAddress,
				AmountSatoshi:  cand.AddressSatoshi,
				Tickets:        tickets,
				MatchID:        outcome.MatchID,
				OutcomeID:      outcome.ID,
				Score:          outcome.Score,
				Timestamp:      cand.Timestamp,
			})
		}
	}

	if res.Committed > 0 && res.NewCursor != "" && res.NewCursor != outcome.Cursor {
		if err := r.cursors.UpdateCursor(ctx, outcome.ID, res.NewCursor); err != nil {
			// The commits are durable; a stale cursor only costs a longer
			// scan next pass.
			r.logger.Warn("cursor update failed",
				slog.String("outcome_id", outcome.ID),
				slog.String("error", err.Error()),
			)
			return res, nil
		}
		outcome.Cursor = res.NewCursor
		res.CursorAdvanced = true
	}

	return res, nil
}
