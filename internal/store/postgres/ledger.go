package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scorechain/bchbet/internal/domain"
)

// Ledger implements domain.Ledger using PostgreSQL. Committed rows are never
// updated or deleted by the application.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a new Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

const txSelectCols = `hash, deposit_address, origin_address, amount_satoshi,
	outcome_id, tickets, timestamp, created_at`

func scanBetTxRows(rows pgx.Rows) ([]domain.BetTransaction, error) {
	var txs []domain.BetTransaction
	for rows.Next() {
		var t domain.BetTransaction
		if err := rows.Scan(
			&t.Hash, &t.DepositAddress, &t.OriginAddress, &t.AmountSatoshi,
			&t.OutcomeID, &t.Tickets, &t.Timestamp, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// Exists reports whether a transaction hash has already been committed.
func (l *Ledger) Exists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM bet_transactions WHERE hash = $1)", hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check transaction %s: %w", hash, err)
	}
	return exists, nil
}

// Commit writes the transaction record and increments the owning outcome's
// ticket count inside a single database transaction. A duplicate hash rolls
// everything back and returns domain.ErrDuplicateTransaction.
func (l *Ledger) Commit(ctx context.Context, t domain.BetTransaction) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin commit for %s: %w", t.Hash, err)
	}
	defer tx.Rollback(ctx)

	const insert = `
		INSERT INTO bet_transactions (
			hash, deposit_address, origin_address, amount_satoshi,
			outcome_id, tickets, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, insert,
		t.Hash, t.DepositAddress, t.OriginAddress, t.AmountSatoshi,
		t.OutcomeID, t.Tickets, t.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateTransaction
		}
		return fmt.Errorf("postgres: insert transaction %s: %w", t.Hash, err)
	}

	if t.OutcomeID != nil {
		const increment = `
			UPDATE outcomes SET ticket_count = ticket_count + $2, updated_at = NOW()
			WHERE id = $1`

		tag, err := tx.Exec(ctx, increment, *t.OutcomeID, t.Tickets)
		if err != nil {
			return fmt.Errorf("postgres: credit tickets for outcome %s: %w", *t.OutcomeID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres: credit tickets: outcome %s: %w", *t.OutcomeID, domain.ErrNotFound)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transaction %s: %w", t.Hash, err)
	}
	return nil
}

// ListByOutcome returns all committed transactions for an outcome, oldest first.
func (l *Ledger) ListByOutcome(ctx context.Context, outcomeID string) ([]domain.BetTransaction, error) {
	query := `SELECT ` + txSelectCols + ` FROM bet_transactions WHERE outcome_id = $1 ORDER BY timestamp ASC`

	rows, err := l.pool.Query(ctx, query, outcomeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions for outcome %s: %w", outcomeID, err)
	}
	defer rows.Close()

	txs, err := scanBetTxRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions for outcome %s: %w", outcomeID, err)
	}
	return txs, nil
}

// ListByAddress returns committed transactions for a deposit address with
// pagination, newest first.
func (l *Ledger) ListByAddress(ctx context.Context, depositAddress string, opts domain.ListOpts) ([]domain.BetTransaction, error) {
	query := `SELECT ` + txSelectCols + ` FROM bet_transactions WHERE deposit_address = $1 ORDER BY timestamp DESC`
	args := []any{depositAddress}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions for address %s: %w", depositAddress, err)
	}
	defer rows.Close()

	txs, err := scanBetTxRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions for address %s: %w", depositAddress, err)
	}
	return txs, nil
}

// ListBefore returns all committed transactions older than the cutoff, oldest
// first, for audit export.
func (l *Ledger) ListBefore(ctx context.Context, before time.Time) ([]domain.BetTransaction, error) {
	query := `SELECT ` + txSelectCols + ` FROM bet_transactions WHERE created_at < $1 ORDER BY created_at ASC`

	rows, err := l.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	txs, err := scanBetTxRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions before cutoff: %w", err)
	}
	return txs, nil
}
