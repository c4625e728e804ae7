package domain

import "time"

// MatchStatus represents the lifecycle state of a match market.
type MatchStatus string

const (
	MatchStatusOpen    MatchStatus = "open"
	MatchStatusSettled MatchStatus = "settled"
)

// Match represents a single sports match with an exact-score betting market.
type Match struct {
	ID           string
	HomeTeam     string
	AwayTeam     string
	KickoffAt    time.Time
	Status       MatchStatus
	WinningScore string // set at settlement, empty while open
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Outcome is one predicted score for one match. Each outcome owns a deposit
// address that is unique across the whole system; incoming payments to that
// address buy tickets on this score.
type Outcome struct {
	ID      string
	MatchID string
	Score   string // e.g. "2-1"

	// DepositAddress receives bets for this score. Unique system-wide.
	DepositAddress string

	// TicketCount is the cumulative number of tickets credited to this
	// outcome. Mutated only by the reconciliation engine, never decremented.
	TicketCount int64

	// Cursor is the hash of the most recently reconciled transaction for
	// DepositAddress. It is a scan optimization only; the ledger's hash
	// uniqueness is the authority on what has been processed.
	Cursor string

	CreatedAt time.Time
	UpdatedAt time.Time
}
