// Package service contains the application services that sit between the HTTP
// layer and the stores.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scorechain/bchbet/internal/domain"
	"github.com/scorechain/bchbet/internal/engine"
	"github.com/scorechain/bchbet/internal/notify"
)

// RateSource supplies the current exchange rate to settlement.
type RateSource interface {
	Current(ctx context.Context) (domain.ExchangeRate, error)
}

// MarketService manages match markets: creation with per-score deposit
// addresses and settlement into a payout schedule.
type MarketService struct {
	matches      domain.MatchStore
	outcomes     domain.OutcomeStore
	ledger       domain.Ledger
	rates        RateSource
	prizePoolUSD decimal.Decimal
	notifier     *notify.Notifier
	logger       *slog.Logger
}

// NewMarketService creates a MarketService. prizePoolUSD is the fixed prize
// pool split among the winning outcome's tickets at settlement. notifier may
// be nil when operator alerts are not wanted.
func NewMarketService(
	matches domain.MatchStore,
	outcomes domain.OutcomeStore,
	ledger domain.Ledger,
	rates RateSource,
	prizePoolUSD decimal.Decimal,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		matches:      matches,
		outcomes:     outcomes,
		ledger:       ledger,
		rates:        rates,
		prizePoolUSD: prizePoolUSD,
		notifier:     notifier,
		logger:       logger.With("component", "market_service"),
	}
}

// generateDepositAddress derives a fresh deposit address for an outcome. Real
// deployments plug in an HD wallet here; until then addresses are unique
// opaque identifiers in CashAddr shape so the rest of the system exercises
// the same code paths.
func generateDepositAddress() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "bitcoincash:q" + raw
}

// CreateMatch creates a match and one outcome per predicted score, each with
// its own deposit address. Scores must be non-empty and unique within the
// match.
func (s *MarketService) CreateMatch(ctx context.Context, homeTeam, awayTeam string, kickoffAt time.Time, scores []string) (domain.Match, []domain.Outcome, error) {
	if homeTeam == "" || awayTeam == "" {
		return domain.Match{}, nil, fmt.Errorf("market: home and away teams are required")
	}
	if len(scores) == 0 {
		return domain.Match{}, nil, fmt.Errorf("market: at least one score outcome is required")
	}

	seen := make(map[string]bool, len(scores))
	for _, score := range scores {
		if strings.TrimSpace(score) == "" {
			return domain.Match{}, nil, fmt.Errorf("market: empty score outcome")
		}
		if seen[score] {
			return domain.Match{}, nil, fmt.Errorf("market: duplicate score outcome %q", score)
		}
		seen[score] = true
	}

	now := time.Now().UTC()
	match := domain.Match{
		ID:        uuid.New().String(),
		HomeTeam:  homeTeam,
		AwayTeam:  awayTeam,
		KickoffAt: kickoffAt,
		Status:    domain.MatchStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.matches.Create(ctx, match); err != nil {
		return domain.Match{}, nil, fmt.Errorf("market: create match: %w", err)
	}

	outcomes := make([]domain.Outcome, 0, len(scores))
	for _, score := range scores {
		outcomes = append(outcomes, domain.Outcome{
			ID:             uuid.New().String(),
			MatchID:        match.ID,
			Score:          score,
			DepositAddress: generateDepositAddress(),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if err := s.outcomes.CreateBatch(ctx, outcomes); err != nil {
		return domain.Match{}, nil, fmt.Errorf("market: create outcomes: %w", err)
	}

	s.logger.Info("match created",
		"match_id", match.ID,
		"home", homeTeam,
		"away", awayTeam,
		"outcomes", len(outcomes))

	return match, outcomes, nil
}

// GetMatch returns a match with its outcomes.
func (s *MarketService) GetMatch(ctx context.Context, id string) (domain.Match, []domain.Outcome, error) {
	match, err := s.matches.GetByID(ctx, id)
	if err != nil {
		return domain.Match{}, nil, err
	}
	outcomes, err := s.outcomes.ListByMatch(ctx, id)
	if err != nil {
		return domain.Match{}, nil, err
	}
	return match, outcomes, nil
}

// ListMatches returns matches with pagination.
func (s *MarketService) ListMatches(ctx context.Context, opts domain.ListOpts) ([]domain.Match, error) {
	return s.matches.List(ctx, opts)
}

// Settlement is the result of settling a match: the winning outcome and the
// payout schedule owed to its bettors.
type Settlement struct {
	Match   domain.Match
	Winner  domain.Outcome
	Payouts []domain.PayoutLine
}

// Settle marks a match as settled with the given winning score and computes
// the payout schedule for the winning outcome. An unknown score returns
// domain.ErrNotFound; a match that is already settled returns
// domain.ErrMatchSettled. A winning outcome with no tickets settles to an
// empty schedule.
func (s *MarketService) Settle(ctx context.Context, matchID, winningScore string) (Settlement, error) {
	winner, err := s.outcomes.GetByMatchAndScore(ctx, matchID, winningScore)
	if err != nil {
		return Settlement{}, fmt.Errorf("market: winning outcome %s/%s: %w", matchID, winningScore, err)
	}

	rate, err := s.rates.Current(ctx)
	if err != nil {
		return Settlement{}, fmt.Errorf("market: settle %s: %w", matchID, err)
	}

	txs, err := s.ledger.ListByOutcome(ctx, winner.ID)
	if err != nil {
		return Settlement{}, fmt.Errorf("market: settle %s: list transactions: %w", matchID, err)
	}

	payouts, err := engine.ComputePayouts(txs, s.prizePoolUSD, rate)
	if err != nil {
		return Settlement{}, fmt.Errorf("market: settle %s: compute payouts: %w", matchID, err)
	}

	// The status flip comes last so any failure above leaves the match open
	// and the settle retryable. The open-status guard in the store arbitrates
	// concurrent settles.
	if err := s.matches.MarkSettled(ctx, matchID, winningScore); err != nil {
		return Settlement{}, fmt.Errorf("market: settle %s: %w", matchID, err)
	}

	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return Settlement{}, fmt.Errorf("market: settle %s: reload match: %w", matchID, err)
	}

	s.logger.Info("match settled",
		"match_id", matchID,
		"winning_score", winningScore,
		"payout_lines", len(payouts))

	if s.notifier != nil {
		msg := fmt.Sprintf("%s vs %s settled %s with %d payout line(s)",
			match.HomeTeam, match.AwayTeam, winningScore, len(payouts))
		_ = s.notifier.Notify(ctx, notify.EventMatchSettled, "Match settled", msg)
	}

	return Settlement{Match: match, Winner: winner, Payouts: payouts}, nil
}
