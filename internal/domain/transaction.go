package domain

import "time"

// SatoshisPerBCH is the fixed smallest-unit divisor for Bitcoin Cash.
const SatoshisPerBCH = 100_000_000

// CandidateTransaction is an indexer-reported incoming payment that has not
// been validated or committed yet. It is produced by an indexer adapter and
// consumed once per reconciliation pass; nothing persists it.
type CandidateTransaction struct {
	Hash string

	// BlockHeight is the height of the block containing the transaction.
	// Zero means the transaction is still unconfirmed.
	BlockHeight int64

	// AddressSatoshi is the amount credited to the monitored address by this
	// transaction, in satoshis. A transaction may have many outputs; only the
	// output paying the monitored address counts.
	AddressSatoshi int64

	// OriginAddress is the first input address of the transaction, i.e. the
	// bettor's return address. Empty when the adapter cannot resolve it.
	OriginAddress string

	Timestamp time.Time
}

// Confirmed reports whether the candidate has been mined.
func (c CandidateTransaction) Confirmed() bool {
	return c.BlockHeight > 0
}

// BetTransaction is the durable record of a transaction the reconciliation
// engine has accepted. Rows are written exactly once and never updated; the
// unique hash is the sole source of truth for "already processed".
type BetTransaction struct {
	Hash           string
	DepositAddress string
	OriginAddress  string
	AmountSatoshi  int64

	// OutcomeID is nil when the owning outcome was deleted after the
	// transaction was committed; the record survives as audit trail but is
	// excluded from payout grouping.
	OutcomeID *string

	Tickets   int64
	Timestamp time.Time
	CreatedAt time.Time
}

// TransactionEvent is the notification emitted for each committed transaction,
// fanned out to subscribers of the owning match. Delivery is best effort; a
// lost event never loses the underlying ledger record.
type TransactionEvent struct {
	Hash           string    `json:"tx_hash"`
	DepositAddress string    `json:"deposit_address"`
	AmountSatoshi  int64     `json:"amount_satoshi"`
	Tickets        int64     `json:"tickets"`
	MatchID        string    `json:"match_id"`
	OutcomeID      string    `json:"outcome_id"`
	Score          string    `json:"score"`
	Timestamp      time.Time `json:"timestamp"`
}
