package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scorechain/bchbet/internal/domain"
)

// LedgerArchiveStore provides read access to committed transactions for
// archival. Archived ledger rows are never deleted from the primary store;
// the upload is an off-site audit copy.
type LedgerArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.BetTransaction, error)
}

// RateArchiveStore provides read and prune access to the exchange-rate
// history.
type RateArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ExchangeRate, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl uploads old records as JSONL files to S3. Committed bet
// transactions are copied, never removed; rate snapshots are pruned after a
// successful upload since only the newest one matters operationally.
type ArchiveImpl struct {
	writer domain.BlobWriter
	ledger LedgerArchiveStore
	rates  RateArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, ledger LedgerArchiveStore, rates RateArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		ledger: ledger,
		rates:  rates,
	}
}

// ArchiveBets queries committed transactions before the cutoff, serializes
// them to JSONL, and uploads the file at archive/bets/YYYY-MM.jsonl. The
// rows stay in the ledger. Returns the count of archived records.
func (a *ArchiveImpl) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	txs, err := a.ledger.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets query: %w", err)
	}
	if len(txs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(betRecords(txs))
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets marshal: %w", err)
	}

	path := archivePath("bets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive bets upload: %w", err)
	}

	return int64(len(txs)), nil
}

// ArchiveRates uploads rate snapshots older than the cutoff and then prunes
// them from the store. The prune only runs after the upload succeeded.
func (a *ArchiveImpl) ArchiveRates(ctx context.Context, before time.Time) (int64, error) {
	rates, err := a.rates.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rates query: %w", err)
	}
	if len(rates) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rateRecords(rates))
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rates marshal: %w", err)
	}

	path := archivePath("rates", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive rates upload: %w", err)
	}

	deleted, err := a.rates.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune rates: %w", err)
	}
	return deleted, nil
}

// betRecord is the JSONL shape of an archived bet transaction.
type betRecord struct {
	Hash           string    `json:"tx_hash"`
	DepositAddress string    `json:"deposit_address"`
	OriginAddress  string    `json:"origin_address,omitempty"`
	AmountSatoshi  int64     `json:"amount_satoshi"`
	OutcomeID      *string   `json:"outcome_id"`
	Tickets        int64     `json:"tickets"`
	Timestamp      time.Time `json:"timestamp"`
	CreatedAt      time.Time `json:"created_at"`
}

func betRecords(txs []domain.BetTransaction) []betRecord {
	out := make([]betRecord, 0, len(txs))
	for _, t := range txs {
		out = append(out, betRecord{
			Hash:           t.Hash,
			DepositAddress: t.DepositAddress,
			OriginAddress:  t.OriginAddress,
			AmountSatoshi:  t.AmountSatoshi,
			OutcomeID:      t.OutcomeID,
			Tickets:        t.Tickets,
			Timestamp:      t.Timestamp,
			CreatedAt:      t.CreatedAt,
		})
	}
	return out
}

// rateRecord is the JSONL shape of an archived exchange-rate snapshot.
type rateRecord struct {
	Rate       string    `json:"rate"`
	CapturedAt time.Time `json:"captured_at"`
}

func rateRecords(rates []domain.ExchangeRate) []rateRecord {
	out := make([]rateRecord, 0, len(rates))
	for _, r := range rates {
		out = append(out, rateRecord{
			Rate:       r.Rate.String(),
			CapturedAt: r.CapturedAt,
		})
	}
	return out
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/bets/2026-08.jsonl
//	archive/rates/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
