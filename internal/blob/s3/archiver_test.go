package s3blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scorechain/bchbet/internal/domain"
)

type memWriter struct {
	objects map[string]string
	putErr  error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: make(map[string]string)}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.putErr != nil {
		return w.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = string(b)
	return nil
}

type stubLedger struct {
	txs []domain.BetTransaction
}

func (s *stubLedger) ListBefore(_ context.Context, _ time.Time) ([]domain.BetTransaction, error) {
	return s.txs, nil
}

type stubRates struct {
	rates   []domain.ExchangeRate
	deleted int64
}

func (s *stubRates) ListBefore(_ context.Context, _ time.Time) ([]domain.ExchangeRate, error) {
	return s.rates, nil
}

func (s *stubRates) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	s.deleted = int64(len(s.rates))
	return s.deleted, nil
}

func TestArchiveBetsUploadsJSONL(t *testing.T) {
	outcomeID := "out-1"
	ledger := &stubLedger{txs: []domain.BetTransaction{
		{Hash: "tx-1", DepositAddress: "addr", AmountSatoshi: 1_000_000, OutcomeID: &outcomeID, Tickets: 2},
		{Hash: "tx-2", DepositAddress: "addr", AmountSatoshi: 500_000, Tickets: 1},
	}}
	writer := newMemWriter()
	arch := NewArchiver(writer, ledger, &stubRates{})

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	n, err := arch.ArchiveBets(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveBets: %v", err)
	}
	if n != 2 {
		t.Errorf("archived %d records, want 2", n)
	}

	body, ok := writer.objects["archive/bets/2026-08.jsonl"]
	if !ok {
		t.Fatalf("expected archive/bets/2026-08.jsonl, got keys %v", writer.objects)
	}
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Errorf("got %d JSONL lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"tx_hash":"tx-1"`) {
		t.Errorf("first line missing tx-1: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"outcome_id":null`) {
		t.Errorf("orphaned record should carry null outcome_id: %s", lines[1])
	}
}

func TestArchiveBetsEmpty(t *testing.T) {
	writer := newMemWriter()
	arch := NewArchiver(writer, &stubLedger{}, &stubRates{})

	n, err := arch.ArchiveBets(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveBets: %v", err)
	}
	if n != 0 || len(writer.objects) != 0 {
		t.Error("nothing should be uploaded when there are no old records")
	}
}

func TestArchiveRatesPrunesAfterUpload(t *testing.T) {
	rates := &stubRates{rates: []domain.ExchangeRate{
		{Rate: decimal.NewFromInt(400), CapturedAt: time.Now().Add(-48 * time.Hour)},
	}}
	writer := newMemWriter()
	arch := NewArchiver(writer, &stubLedger{}, rates)

	n, err := arch.ArchiveRates(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveRates: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d snapshots, want 1", n)
	}
	if len(writer.objects) != 1 {
		t.Errorf("uploaded %d objects, want 1", len(writer.objects))
	}
}

func TestArchiveRatesKeepsStoreOnUploadFailure(t *testing.T) {
	rates := &stubRates{rates: []domain.ExchangeRate{
		{Rate: decimal.NewFromInt(400), CapturedAt: time.Now().Add(-48 * time.Hour)},
	}}
	writer := newMemWriter()
	writer.putErr = errors.New("bucket gone")
	arch := NewArchiver(writer, &stubLedger{}, rates)

	if _, err := arch.ArchiveRates(context.Background(), time.Now()); err == nil {
		t.Fatal("expected upload error")
	}
	if rates.deleted != 0 {
		t.Error("prune must not run when the upload failed")
	}
}
