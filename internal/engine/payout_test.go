package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scorechain/bchbet/internal/domain"
)

func committedTx(hash, origin string, tickets int64, outcomeID string) domain.BetTransaction {
	var ref *string
	if outcomeID != "" {
		ref = &outcomeID
	}
	return domain.BetTransaction{
		Hash:           hash,
		DepositAddress: "bitcoincash:qqdeposit",
		OriginAddress:  origin,
		AmountSatoshi:  tickets * 500_000,
		OutcomeID:      ref,
		Tickets:        tickets,
		Timestamp:      time.Now(),
	}
}

func TestComputePayoutsScenario(t *testing.T) {
	// pool 50.00 USD, rate 250.00 => 0.2 BCH pool. Addresses hold 3 and 1
	// tickets => per-ticket 0.05 BCH => payouts 0.15 and 0.05.
	txs := []domain.BetTransaction{
		committedTx("a1", "bitcoincash:qqalice", 2, "out-1"),
		committedTx("a2", "bitcoincash:qqalice", 1, "out-1"),
		committedTx("b1", "bitcoincash:qqbob", 1, "out-1"),
	}

	lines, err := ComputePayouts(txs, decimal.RequireFromString("50.00"), rateOf("250.00"))
	if err != nil {
		t.Fatalf("compute payouts: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 payout lines, got %d", len(lines))
	}

	if lines[0].Address != "bitcoincash:qqalice" || lines[1].Address != "bitcoincash:qqbob" {
		t.Fatalf("unexpected address order: %+v", lines)
	}
	if !lines[0].AmountBCH.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("alice payout = %s, want 0.15", lines[0].AmountBCH)
	}
	if lines[0].Tickets != 3 {
		t.Errorf("alice tickets = %d, want 3 (two transactions aggregated)", lines[0].Tickets)
	}
	if !lines[1].AmountBCH.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("bob payout = %s, want 0.05", lines[1].AmountBCH)
	}
}

func TestComputePayoutsNoWinners(t *testing.T) {
	lines, err := ComputePayouts(nil, decimal.RequireFromString("50.00"), rateOf("250.00"))
	if err != nil {
		t.Fatalf("expected empty schedule, got error %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected empty schedule, got %+v", lines)
	}
}

func TestComputePayoutsRateUnavailable(t *testing.T) {
	txs := []domain.BetTransaction{committedTx("a1", "addr", 1, "out-1")}
	_, err := ComputePayouts(txs, decimal.RequireFromString("50.00"), domain.ExchangeRate{})
	if !errors.Is(err, domain.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
}

func TestComputePayoutsExcludesOrphanedRecords(t *testing.T) {
	txs := []domain.BetTransaction{
		committedTx("a1", "bitcoincash:qqalice", 3, "out-1"),
		committedTx("g1", "bitcoincash:qqghost", 5, ""), // outcome deleted
	}

	lines, err := ComputePayouts(txs, decimal.RequireFromString("50.00"), rateOf("250.00"))
	if err != nil {
		t.Fatalf("compute payouts: %v", err)
	}
	if len(lines) != 1 || lines[0].Address != "bitcoincash:qqalice" {
		t.Fatalf("orphaned record leaked into payouts: %+v", lines)
	}
	// The orphaned tickets must not dilute the live ones either.
	if !lines[0].AmountBCH.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("alice payout = %s, want full 0.2 pool", lines[0].AmountBCH)
	}
}

func TestComputePayoutsFallsBackToDepositAddress(t *testing.T) {
	txs := []domain.BetTransaction{committedTx("a1", "", 1, "out-1")}
	lines, err := ComputePayouts(txs, decimal.RequireFromString("50.00"), rateOf("250.00"))
	if err != nil {
		t.Fatalf("compute payouts: %v", err)
	}
	if len(lines) != 1 || lines[0].Address != "bitcoincash:qqdeposit" {
		t.Fatalf("expected deposit-address fallback, got %+v", lines)
	}
}

func TestComputePayoutsConservation(t *testing.T) {
	// Awkward ticket split that does not divide the pool evenly: the rounded
	// schedule may deviate from the exact pool by at most one satoshi per
	// line.
	txs := []domain.BetTransaction{
		committedTx("a1", "addr-a", 1, "out-1"),
		committedTx("b1", "addr-b", 1, "out-1"),
		committedTx("c1", "addr-c", 1, "out-1"),
	}
	pool := decimal.RequireFromString("10.00")
	rate := rateOf("300.00")

	lines, err := ComputePayouts(txs, pool, rate)
	if err != nil {
		t.Fatalf("compute payouts: %v", err)
	}

	total := decimal.Zero
	for _, l := range lines {
		if l.AmountBCH.IsNegative() {
			t.Errorf("negative payout for %s: %s", l.Address, l.AmountBCH)
		}
		total = total.Add(l.AmountBCH)
	}

	exact := pool.Div(rate.Rate)
	slack := decimal.New(int64(len(lines)), -bchPlaces)
	if total.Sub(exact).Abs().GreaterThan(slack) {
		t.Errorf("schedule total %s deviates from pool %s by more than %s", total, exact, slack)
	}
}
