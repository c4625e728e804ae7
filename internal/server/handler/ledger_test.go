package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scorechain/bchbet/internal/domain"
)

type stubLedger struct {
	byOutcome map[string][]domain.BetTransaction
	byAddress map[string][]domain.BetTransaction
}

func (l *stubLedger) Exists(_ context.Context, _ string) (bool, error) { return false, nil }
func (l *stubLedger) Commit(_ context.Context, _ domain.BetTransaction) error {
	return nil
}
func (l *stubLedger) ListByOutcome(_ context.Context, id string) ([]domain.BetTransaction, error) {
	return l.byOutcome[id], nil
}
func (l *stubLedger) ListByAddress(_ context.Context, addr string, _ domain.ListOpts) ([]domain.BetTransaction, error) {
	return l.byAddress[addr], nil
}
func (l *stubLedger) ListBefore(_ context.Context, _ time.Time) ([]domain.BetTransaction, error) {
	return nil, nil
}

type stubOutcomes struct {
	known map[string]domain.Outcome
}

func (s *stubOutcomes) CreateBatch(_ context.Context, _ []domain.Outcome) error { return nil }
func (s *stubOutcomes) GetByID(_ context.Context, id string) (domain.Outcome, error) {
	o, ok := s.known[id]
	if !ok {
		return domain.Outcome{}, domain.ErrNotFound
	}
	return o, nil
}
func (s *stubOutcomes) GetByMatchAndScore(_ context.Context, _, _ string) (domain.Outcome, error) {
	return domain.Outcome{}, domain.ErrNotFound
}
func (s *stubOutcomes) ListByMatch(_ context.Context, _ string) ([]domain.Outcome, error) {
	return nil, nil
}
func (s *stubOutcomes) ListMonitored(_ context.Context) ([]domain.Outcome, error) { return nil, nil }
func (s *stubOutcomes) UpdateCursor(_ context.Context, _, _ string) error         { return nil }

func newLedgerHandler(ledger *stubLedger, outcomes *stubOutcomes) *LedgerHandler {
	return NewLedgerHandler(ledger, outcomes, slog.New(slog.DiscardHandler))
}

func TestListByOutcome(t *testing.T) {
	ledger := &stubLedger{byOutcome: map[string][]domain.BetTransaction{
		"out-1": {
			{Hash: "tx-1", DepositAddress: "addr", AmountSatoshi: 1_000_000, Tickets: 2},
		},
	}}
	outcomes := &stubOutcomes{known: map[string]domain.Outcome{"out-1": {ID: "out-1"}}}
	h := newLedgerHandler(ledger, outcomes)

	req := httptest.NewRequest(http.MethodGet, "/api/outcomes/out-1/transactions", nil)
	req.SetPathValue("id", "out-1")
	rec := httptest.NewRecorder()
	h.ListByOutcome(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body []transactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body[0].Hash != "tx-1" || body[0].Tickets != 2 {
		t.Errorf("body = %+v, want one tx-1 with 2 tickets", body)
	}
}

func TestListByOutcomeUnknown(t *testing.T) {
	h := newLedgerHandler(&stubLedger{}, &stubOutcomes{})

	req := httptest.NewRequest(http.MethodGet, "/api/outcomes/nope/transactions", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.ListByOutcome(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListByAddress(t *testing.T) {
	ledger := &stubLedger{byAddress: map[string][]domain.BetTransaction{
		"bitcoincash:qdeposit": {
			{Hash: "tx-9", DepositAddress: "bitcoincash:qdeposit", AmountSatoshi: 500_000, Tickets: 1},
		},
	}}
	h := newLedgerHandler(ledger, &stubOutcomes{})

	req := httptest.NewRequest(http.MethodGet, "/api/addresses/bitcoincash:qdeposit/transactions", nil)
	req.SetPathValue("address", "bitcoincash:qdeposit")
	rec := httptest.NewRecorder()
	h.ListByAddress(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body []transactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body[0].Hash != "tx-9" {
		t.Errorf("body = %+v, want one tx-9", body)
	}
}
