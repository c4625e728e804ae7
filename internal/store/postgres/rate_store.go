package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scorechain/bchbet/internal/domain"
)

// RateStore implements domain.RateStore using PostgreSQL.
type RateStore struct {
	pool *pgxpool.Pool
}

// NewRateStore creates a new RateStore backed by the given connection pool.
func NewRateStore(pool *pgxpool.Pool) *RateStore {
	return &RateStore{pool: pool}
}

// Append records a new exchange-rate snapshot.
func (s *RateStore) Append(ctx context.Context, r domain.ExchangeRate) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO exchange_rates (rate, captured_at) VALUES ($1, $2)",
		r.Rate, r.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append exchange rate: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or domain.ErrNotFound when the
// history is empty.
func (s *RateStore) Latest(ctx context.Context) (domain.ExchangeRate, error) {
	var r domain.ExchangeRate
	err := s.pool.QueryRow(ctx,
		"SELECT rate, captured_at FROM exchange_rates ORDER BY captured_at DESC LIMIT 1",
	).Scan(&r.Rate, &r.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExchangeRate{}, domain.ErrNotFound
		}
		return domain.ExchangeRate{}, fmt.Errorf("postgres: latest exchange rate: %w", err)
	}
	return r, nil
}

// DeleteBefore prunes snapshots older than the cutoff. The newest snapshot is
// always kept so Latest never goes empty after a prune.
func (s *RateStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `
		DELETE FROM exchange_rates
		WHERE captured_at < $1
		AND id <> (SELECT id FROM exchange_rates ORDER BY captured_at DESC LIMIT 1)`

	tag, err := s.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete exchange rates before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListBefore returns snapshots older than the cutoff, oldest first, for
// archiving ahead of a prune.
func (s *RateStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExchangeRate, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT rate, captured_at FROM exchange_rates WHERE captured_at < $1 ORDER BY captured_at ASC",
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exchange rates before: %w", err)
	}
	defer rows.Close()

	var rates []domain.ExchangeRate
	for rows.Next() {
		var r domain.ExchangeRate
		if err := rows.Scan(&r.Rate, &r.CapturedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan exchange rate: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}
