package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is a timestamped snapshot of the BCH/USD conversion rate.
// Snapshots are append-only; the current rate is always the most recent one.
type ExchangeRate struct {
	Rate       decimal.Decimal
	CapturedAt time.Time
}

// Usable reports whether the snapshot can be used for ticket or payout math.
func (r ExchangeRate) Usable() bool {
	return r.Rate.IsPositive()
}

// PayoutLine is one row of a payout schedule: the total amount owed to a
// single originating address, in BCH. Computed only; disbursement is an
// external responsibility.
type PayoutLine struct {
	Address   string          `json:"address"`
	Tickets   int64           `json:"tickets"`
	AmountBCH decimal.Decimal `json:"amount_bch"`
}
