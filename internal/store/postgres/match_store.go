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

// MatchStore implements domain.MatchStore using PostgreSQL.
type MatchStore struct {
	pool *pgxpool.Pool
}

// NewMatchStore creates a new MatchStore backed by the given connection pool.
func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

const matchSelectCols = `id, home_team, away_team, kickoff_at, status,
	winning_score, created_at, updated_at`

func scanMatch(row pgx.Row) (domain.Match, error) {
	var m domain.Match
	err := row.Scan(
		&m.ID, &m.HomeTeam, &m.AwayTeam, &m.KickoffAt,
		&m.Status, &m.WinningScore, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

// Create inserts a new match. A duplicate ID returns domain.ErrAlreadyExists.
func (s *MatchStore) Create(ctx context.Context, m domain.Match) error {
	const query = `
		INSERT INTO matches (
			id, home_team, away_team, kickoff_at, status, winning_score
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.HomeTeam, m.AwayTeam, m.KickoffAt, string(m.Status), m.WinningScore,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create match %s: %w", m.ID, err)
	}
	return nil
}

// GetByID returns a single match, or domain.ErrNotFound.
func (s *MatchStore) GetByID(ctx context.Context, id string) (domain.Match, error) {
	query := `SELECT ` + matchSelectCols + ` FROM matches WHERE id = $1`

	m, err := scanMatch(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Match{}, domain.ErrNotFound
		}
		return domain.Match{}, fmt.Errorf("postgres: get match %s: %w", id, err)
	}
	return m, nil
}

// List returns matches ordered by kickoff time, newest first.
func (s *MatchStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Match, error) {
	query := `SELECT ` + matchSelectCols + ` FROM matches ORDER BY kickoff_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// MarkSettled transitions a match to settled with the given winning score.
// Returns domain.ErrNotFound for an unknown ID and domain.ErrMatchSettled if
// the match was already settled.
func (s *MatchStore) MarkSettled(ctx context.Context, id, winningScore string) error {
	const query = `
		UPDATE matches
		SET status = $2, winning_score = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`

	tag, err := s.pool.Exec(ctx, query,
		id, string(domain.MatchStatusSettled), winningScore, string(domain.MatchStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("postgres: settle match %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: settle match %s: %w", id, err)
		}
		if exists {
			return domain.ErrMatchSettled
		}
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the total number of matches.
func (s *MatchStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM matches").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count matches: %w", err)
	}
	return count, nil
}
