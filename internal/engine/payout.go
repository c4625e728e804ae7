package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/scorechain/bchbet/internal/domain"
)

// bchPlaces is the number of decimal places in the smallest BCH unit.
const bchPlaces = 8

// ComputePayouts splits a fixed USD prize pool proportionally across the
// addresses that hold tickets on the winning outcome. txs must be the
// committed transactions referencing that outcome; rows whose outcome
// reference has been nulled (outcome deleted after commit) stay in the audit
// ledger but take no part in the split.
//
// Each line is quantized to one satoshi with round-half-away-from-zero, so
// the schedule total deviates from pool/rate by at most one satoshi per line.
// An outcome with zero tickets yields an empty schedule, not an error. The
// computation is pure; it never moves funds.
func ComputePayouts(txs []domain.BetTransaction, prizePoolUSD decimal.Decimal, rate domain.ExchangeRate) ([]domain.PayoutLine, error) {
	if !rate.Usable() {
		return nil, domain.ErrRateUnavailable
	}

	ticketsByAddr := make(map[string]int64)
	var totalTickets int64
	for _, tx := range txs {
		if tx.OutcomeID == nil {
			continue
		}
		addr := tx.OriginAddress
		if addr == "" {
			addr = tx.DepositAddress
		}
		ticketsByAddr[addr] += tx.Tickets
		totalTickets += tx.Tickets
	}

	if totalTickets == 0 {
		return []domain.PayoutLine{}, nil
	}

	poolBCH := prizePoolUSD.Div(rate.Rate)
	perTicket := poolBCH.Div(decimal.NewFromInt(totalTickets))

	lines := make([]domain.PayoutLine, 0, len(ticketsByAddr))
	for addr, tickets := range ticketsByAddr {
		lines = append(lines, domain.PayoutLine{
			Address:   addr,
			Tickets:   tickets,
			AmountBCH: perTicket.Mul(decimal.NewFromInt(tickets)).Round(bchPlaces),
		})
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].Address < lines[j].Address })
	return lines, nil
}
