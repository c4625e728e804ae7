package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scorechain/bchbet/internal/domain"
)

// fakeLister returns a canned candidate list.
type fakeLister struct {
	candidates []domain.CandidateTransaction
	err        error
	calls      int
}

func (f *fakeLister) ListCandidates(_ context.Context, _, _ string) ([]domain.CandidateTransaction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

// fakeLedger is an in-memory domain.Ledger.
type fakeLedger struct {
	committed map[string]domain.BetTransaction
	commitErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{committed: make(map[string]domain.BetTransaction)}
}

func (f *fakeLedger) Exists(_ context.Context, hash string) (bool, error) {
	_, ok := f.committed[hash]
	return ok, nil
}

func (f *fakeLedger) Commit(_ context.Context, tx domain.BetTransaction) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	if _, ok := f.committed[tx.Hash]; ok {
		return domain.ErrDuplicateTransaction
	}
	f.committed[tx.Hash] = tx
	return nil
}

func (f *fakeLedger) ListByOutcome(_ context.Context, outcomeID string) ([]domain.BetTransaction, error) {
	var out []domain.BetTransaction
	for _, tx := range f.committed {
		if tx.OutcomeID != nil && *tx.OutcomeID == outcomeID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListByAddress(_ context.Context, _ string, _ domain.ListOpts) ([]domain.BetTransaction, error) {
	return nil, nil
}

func (f *fakeLedger) ListBefore(_ context.Context, _ time.Time) ([]domain.BetTransaction, error) {
	return nil, nil
}

// fakeCursors records cursor updates.
type fakeCursors struct {
	updates map[string]string
	err     error
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{updates: make(map[string]string)}
}

func (f *fakeCursors) UpdateCursor(_ context.Context, outcomeID, cursor string) error {
	if f.err != nil {
		return f.err
	}
	f.updates[outcomeID] = cursor
	return nil
}

// fakeSink collects emitted events.
type fakeSink struct {
	events []domain.TransactionEvent
}

func (f *fakeSink) TransactionAccepted(_ context.Context, evt domain.TransactionEvent) {
	f.events = append(f.events, evt)
}

func testOutcome() *domain.Outcome {
	return &domain.Outcome{
		ID:             "out-1",
		MatchID:        "match-1",
		Score:          "2-1",
		DepositAddress: "bitcoincash:qqtestaddr",
	}
}

func rateOf(s string) domain.ExchangeRate {
	return domain.ExchangeRate{Rate: decimal.RequireFromString(s), CapturedAt: time.Now()}
}

func newTestReconciler(lister CandidateLister, ledger domain.Ledger, cursors CursorStore, sink EventSink) *Reconciler {
	return NewReconciler(lister, ledger, cursors, sink,
		decimal.RequireFromString("1.00"), slog.New(slog.DiscardHandler))
}

func confirmed(hash string, satoshi int64) domain.CandidateTransaction {
	return domain.CandidateTransaction{
		Hash:           hash,
		BlockHeight:    800_000,
		AddressSatoshi: satoshi,
		OriginAddress:  "bitcoincash:qqorigin",
		Timestamp:      time.Now(),
	}
}

func TestReconcileRateUnavailable(t *testing.T) {
	lister := &fakeLister{candidates: []domain.CandidateTransaction{confirmed("aa", 1_200_000)}}
	r := newTestReconciler(lister, newFakeLedger(), newFakeCursors(), nil)

	_, err := r.Reconcile(context.Background(), testOutcome(), domain.ExchangeRate{})
	if !errors.Is(err, domain.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
	if lister.calls != 0 {
		t.Errorf("expected no candidate fetch when rate is missing, got %d calls", lister.calls)
	}

	_, err = r.Reconcile(context.Background(), testOutcome(), rateOf("-10"))
	if !errors.Is(err, domain.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable for negative rate, got %v", err)
	}
}

func TestReconcileTicketScenario(t *testing.T) {
	// rate 200.00 USD/BCH, ticket 1.00 USD => 0.005 BCH per ticket.
	// 0.012 BCH (1,200,000 satoshi) => floor(0.012/0.005) = 2 tickets.
	ledger := newFakeLedger()
	cursors := newFakeCursors()
	sink := &fakeSink{}
	lister := &fakeLister{candidates: []domain.CandidateTransaction{confirmed("tx-a", 1_200_000)}}
	r := newTestReconciler(lister, ledger, cursors, sink)

	out := testOutcome()
	res, err := r.Reconcile(context.Background(), out, rateOf("200.00"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if res.Committed != 1 || res.TicketsCredited != 2 {
		t.Errorf("expected 1 commit / 2 tickets, got %d / %d", res.Committed, res.TicketsCredited)
	}
	if out.TicketCount != 2 {
		t.Errorf("expected outcome ticket count 2, got %d", out.TicketCount)
	}
	tx, ok := ledger.committed["tx-a"]
	if !ok {
		t.Fatal("expected tx-a committed")
	}
	if tx.Tickets != 2 {
		t.Errorf("expected recorded tickets 2, got %d", tx.Tickets)
	}
	if tx.OutcomeID == nil || *tx.OutcomeID != "out-1" {
		t.Errorf("expected outcome reference out-1, got %v", tx.OutcomeID)
	}
	if out.Cursor != "tx-a" || !res.CursorAdvanced {
		t.Errorf("expected cursor advanced to tx-a, got %q (advanced=%v)", out.Cursor, res.CursorAdvanced)
	}
	if cursors.updates["out-1"] != "tx-a" {
		t.Errorf("expected persisted cursor tx-a, got %q", cursors.updates["out-1"])
	}
	if len(sink.events) != 1 || sink.events[0].Tickets != 2 || sink.events[0].Score != "2-1" {
		t.Errorf("unexpected events: %+v", sink.events)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	lister := &fakeLister{candidates: []domain.CandidateTransaction{
		confirmed("tx-b", 2_000_000),
		confirmed("tx-a", 1_000_000),
	}}
	r := newTestReconciler(lister, ledger, newFakeCursors(), nil)
	out := testOutcome()

	first, err := r.Reconcile(context.Background(), out, rateOf("100.00"))
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if first.Committed != 2 {
		t.Fatalf("expected 2 commits, got %d", first.Committed)
	}
	countAfterFirst := out.TicketCount
	cursorAfterFirst := out.Cursor

	second, err := r.Reconcile(context.Background(), out, rateOf("100.00"))
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.Committed != 0 {
		t.Errorf("expected no commits on identical second pass, got %d", second.Committed)
	}
	if out.TicketCount != countAfterFirst {
		t.Errorf("ticket count changed on re-run: %d -> %d", countAfterFirst, out.TicketCount)
	}
	if out.Cursor != cursorAfterFirst {
		t.Errorf("cursor changed on re-run: %q -> %q", cursorAfterFirst, out.Cursor)
	}
}

func TestReconcileDedupAfterCursorLoss(t *testing.T) {
	// Simulates an adapter swap that forgets ordering: the same hash arrives
	// again and the outcome cursor no longer matches anything in the list.
	ledger := newFakeLedger()
	lister := &fakeLister{candidates: []domain.CandidateTransaction{confirmed("tx-a", 1_000_000)}}
	r := newTestReconciler(lister, ledger, newFakeCursors(), nil)

	out := testOutcome()
	if _, err := r.Reconcile(context.Background(), out, rateOf("100.00")); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	out.Cursor = "" // cursor lost, ledger check must still hold the line
	res, err := r.Reconcile(context.Background(), out, rateOf("100.00"))
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Committed != 0 || res.SkippedDuplicate != 1 {
		t.Errorf("expected pure duplicate skip, got %+v", res)
	}
	if out.TicketCount != 1 {
		t.Errorf("double credit: ticket count %d", out.TicketCount)
	}
}

func TestReconcileDustRejected(t *testing.T) {
	// rate 200 => 0.005 BCH per ticket; 0.004 BCH is below one ticket.
	ledger := newFakeLedger()
	lister := &fakeLister{candidates: []domain.CandidateTransaction{confirmed("tx-dust", 400_000)}}
	r := newTestReconciler(lister, ledger, newFakeCursors(), nil)

	out := testOutcome()
	res, err := r.Reconcile(context.Background(), out, rateOf("200.00"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.SkippedDust != 1 || res.Committed != 0 {
		t.Errorf("expected dust skip, got %+v", res)
	}
	if out.TicketCount != 0 {
		t.Errorf("dust changed ticket count: %d", out.TicketCount)
	}
	if len(ledger.committed) != 0 {
		t.Errorf("dust produced a committed transaction")
	}
	if out.Cursor != "" {
		t.Errorf("dust advanced cursor to %q", out.Cursor)
	}
}

func TestReconcileUnconfirmedThenConfirmed(t *testing.T) {
	ledger := newFakeLedger()
	pending := domain.CandidateTransaction{
		Hash:           "tx-p",
		BlockHeight:    0,
		AddressSatoshi: 10_000_000,
		Timestamp:      time.Now(),
	}
	lister := &fakeLister{candidates: []domain.CandidateTransaction{pending}}
	r := newTestReconciler(lister, ledger, newFakeCursors(), nil)

	out := testOutcome()
	res, err := r.Reconcile(context.Background(), out, rateOf("200.00"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.SkippedUnconfirmed != 1 || res.Committed != 0 {
		t.Errorf("expected unconfirmed skip, got %+v", res)
	}

	// Same transaction appears confirmed in a later pass.
	pending.BlockHeight = 800_001
	lister.candidates = []domain.CandidateTransaction{pending}
	res, err = r.Reconcile(context.Background(), out, rateOf("200.00"))
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Committed != 1 {
		t.Errorf("expected commit once confirmed, got %+v", res)
	}
}

func TestReconcileZeroAmountSkipped(t *testing.T) {
	lister := &fakeLister{candidates: []domain.CandidateTransaction{confirmed("tx-z", 0)}}
	r := newTestReconciler(lister, newFakeLedger(), newFakeCursors(), nil)

	res, err := r.Reconcile(context.Background(), testOutcome(), rateOf("200.00"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.SkippedNoOutput != 1 || res.Committed != 0 {
		t.Errorf("expected no-output skip, got %+v", res)
	}
}

func TestReconcileCursorShortCircuit(t *testing.T) {
	ledger := newFakeLedger()
	lister := &fakeLister{candidates: []domain.CandidateTransaction{
		confirmed("tx-c", 1_000_000),
		confirmed("tx-b", 1_000_000),
		confirmed("tx-cursor", 1_000_000),
		confirmed("tx-old", 1_000_000),
	}}
	r := newTestReconciler(lister, ledger, newFakeCursors(), nil)

	out := testOutcome()
	out.Cursor = "tx-cursor"
	res, err := r.Reconcile(context.Background(), out, rateOf("100.00"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Committed != 2 {
		t.Errorf("expected 2 commits before cursor hit, got %d", res.Committed)
	}
	if _, ok := ledger.committed["tx-old"]; ok {
		t.Error("scanned past the cursor")
	}
	if out.Cursor != "tx-c" {
		t.Errorf("expected cursor tx-c (newest committed), got %q", out.Cursor)
	}
}

func TestReconcileEmptyHashDoesNotMatchEmptyCursor(t *testing.T) {
	// A fresh outcome has no cursor yet. An adapter that ever yields a
	// candidate with an empty hash must not stop the scan against it.
	ledger := newFakeLedger()
	empty := confirmed("", 1_000_000)
	lister := &fakeLister{candidates: []domain.CandidateTransaction{
		empty,
		confirmed("tx-real", 1_000_000),
	}}
	r := newTestReconciler(lister, ledger, newFakeCursors(), nil)

	res, err := r.Reconcile(context.Background(), testOutcome(), rateOf("100.00"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if _, ok := ledger.committed["tx-real"]; !ok {
		t.Error("first-ever pass stopped before reaching tx-real")
	}
	if res.Committed < 1 {
		t.Errorf("committed = %d, want at least tx-real", res.Committed)
	}
}

func TestReconcileDuplicateCommitRace(t *testing.T) {
	// Exists says no, but Commit reports a duplicate: another pass won the
	// race. Must be a benign skip, not an error.
	ledger := newFakeLedger()
	ledger.commitErr = domain.ErrDuplicateTransaction
	lister := &fakeLister{candidates: []domain.CandidateTransaction{confirmed("tx-r", 1_000_000)}}
	r := newTestReconciler(lister, ledger, newFakeCursors(), nil)

	out := testOutcome()
	res, err := r.Reconcile(context.Background(), out, rateOf("100.00"))
	if err != nil {
		t.Fatalf("expected benign skip, got error %v", err)
	}
	if res.SkippedDuplicate != 1 || res.Committed != 0 {
		t.Errorf("expected duplicate skip, got %+v", res)
	}
	if out.TicketCount != 0 {
		t.Errorf("race produced a credit: %d", out.TicketCount)
	}
}

func TestReconcileAdapterFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection refused")}
	cursors := newFakeCursors()
	r := newTestReconciler(lister, newFakeLedger(), cursors, nil)

	out := testOutcome()
	out.Cursor = "tx-prev"
	_, err := r.Reconcile(context.Background(), out, rateOf("100.00"))
	if err == nil {
		t.Fatal("expected error on adapter failure")
	}
	if out.Cursor != "tx-prev" {
		t.Errorf("cursor changed on failed pass: %q", out.Cursor)
	}
	if len(cursors.updates) != 0 {
		t.Errorf("cursor persisted on failed pass: %v", cursors.updates)
	}
}

func TestReconcileCursorSurvivesUpdateFailure(t *testing.T) {
	// A failed cursor write must not fail the pass; commits are already
	// durable and dedup does not depend on the cursor.
	ledger := newFakeLedger()
	cursors := newFakeCursors()
	cursors.err = errors.New("write timeout")
	lister := &fakeLister{candidates: []domain.CandidateTransaction{confirmed("tx-a", 1_000_000)}}
	r := newTestReconciler(lister, ledger, cursors, nil)

	out := testOutcome()
	res, err := r.Reconcile(context.Background(), out, rateOf("100.00"))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Committed != 1 {
		t.Errorf("expected commit despite cursor failure, got %+v", res)
	}
	if res.CursorAdvanced || out.Cursor != "" {
		t.Errorf("cursor should stay unchanged when persist fails, got %q", out.Cursor)
	}
}
