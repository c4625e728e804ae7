package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scorechain/bchbet/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates a new OutcomeStore backed by the given connection pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

const outcomeSelectCols = `id, match_id, score, deposit_address, ticket_count,
	cursor_hash, created_at, updated_at`

func scanOutcome(row pgx.Row) (domain.Outcome, error) {
	var o domain.Outcome
	err := row.Scan(
		&o.ID, &o.MatchID, &o.Score, &o.DepositAddress,
		&o.TicketCount, &o.Cursor, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanOutcomeRows(rows pgx.Rows) ([]domain.Outcome, error) {
	var outcomes []domain.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// CreateBatch inserts multiple outcomes using pgx Batch. A duplicate deposit
// address or a duplicate (match, score) pair returns domain.ErrAlreadyExists.
func (s *OutcomeStore) CreateBatch(ctx context.Context, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO outcomes (
			id, match_id, score, deposit_address, ticket_count, cursor_hash
		) VALUES ($1, $2, $3, $4, $5, $6)`

	for _, o := range outcomes {
		batch.Queue(query,
			o.ID, o.MatchID, o.Score, o.DepositAddress, o.TicketCount, o.Cursor,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range outcomes {
		if _, err := br.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("postgres: insert outcome batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetByID returns a single outcome, or domain.ErrNotFound.
func (s *OutcomeStore) GetByID(ctx context.Context, id string) (domain.Outcome, error) {
	query := `SELECT ` + outcomeSelectCols + ` FROM outcomes WHERE id = $1`

	o, err := scanOutcome(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Outcome{}, domain.ErrNotFound
		}
		return domain.Outcome{}, fmt.Errorf("postgres: get outcome %s: %w", id, err)
	}
	return o, nil
}

// GetByMatchAndScore returns the outcome for a given match and score, or
// domain.ErrNotFound.
func (s *OutcomeStore) GetByMatchAndScore(ctx context.Context, matchID, score string) (domain.Outcome, error) {
	query := `SELECT ` + outcomeSelectCols + ` FROM outcomes WHERE match_id = $1 AND score = $2`

	o, err := scanOutcome(s.pool.QueryRow(ctx, query, matchID, score))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Outcome{}, domain.ErrNotFound
		}
		return domain.Outcome{}, fmt.Errorf("postgres: get outcome %s/%s: %w", matchID, score, err)
	}
	return o, nil
}

// ListByMatch returns all outcomes for a match ordered by score.
func (s *OutcomeStore) ListByMatch(ctx context.Context, matchID string) ([]domain.Outcome, error) {
	query := `SELECT ` + outcomeSelectCols + ` FROM outcomes WHERE match_id = $1 ORDER BY score`

	rows, err := s.pool.Query(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes for match %s: %w", matchID, err)
	}
	defer rows.Close()

	outcomes, err := scanOutcomeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan outcomes for match %s: %w", matchID, err)
	}
	return outcomes, nil
}

// ListMonitored returns every outcome belonging to an open match. These are
// the deposit addresses the monitor loop reconciles.
func (s *OutcomeStore) ListMonitored(ctx context.Context) ([]domain.Outcome, error) {
	query := `
		SELECT o.id, o.match_id, o.score, o.deposit_address, o.ticket_count,
			o.cursor_hash, o.created_at, o.updated_at
		FROM outcomes o
		JOIN matches m ON m.id = o.match_id
		WHERE m.status = $1 AND o.deposit_address <> ''
		ORDER BY o.created_at`

	rows, err := s.pool.Query(ctx, query, string(domain.MatchStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: list monitored outcomes: %w", err)
	}
	defer rows.Close()

	outcomes, err := scanOutcomeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan monitored outcomes: %w", err)
	}
	return outcomes, nil
}

// UpdateCursor records the newest reconciled transaction hash for an outcome.
func (s *OutcomeStore) UpdateCursor(ctx context.Context, id, cursor string) error {
	const query = `UPDATE outcomes SET cursor_hash = $2, updated_at = NOW() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, cursor)
	if err != nil {
		return fmt.Errorf("postgres: update cursor for outcome %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
