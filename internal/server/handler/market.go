package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/scorechain/bchbet/internal/domain"
	"github.com/scorechain/bchbet/internal/service"
)

// MarketHandler serves the match-market endpoints.
type MarketHandler struct {
	markets *service.MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets *service.MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger.With(slog.String("handler", "market")),
	}
}

// matchResponse is the JSON shape of a match.
type matchResponse struct {
	ID           string            `json:"id"`
	HomeTeam     string            `json:"home_team"`
	AwayTeam     string            `json:"away_team"`
	KickoffAt    time.Time         `json:"kickoff_at"`
	Status       string            `json:"status"`
	WinningScore string            `json:"winning_score,omitempty"`
	Outcomes     []outcomeResponse `json:"outcomes,omitempty"`
}

// outcomeResponse is the JSON shape of a score outcome.
type outcomeResponse struct {
	ID             string `json:"id"`
	Score          string `json:"score"`
	DepositAddress string `json:"deposit_address"`
	TicketCount    int64  `json:"ticket_count"`
}

func toMatchResponse(m domain.Match, outcomes []domain.Outcome) matchResponse {
	resp := matchResponse{
		ID:           m.ID,
		HomeTeam:     m.HomeTeam,
		AwayTeam:     m.AwayTeam,
		KickoffAt:    m.KickoffAt,
		Status:       string(m.Status),
		WinningScore: m.WinningScore,
	}
	for _, o := range outcomes {
		resp.Outcomes = append(resp.Outcomes, outcomeResponse{
			ID:             o.ID,
			Score:          o.Score,
			DepositAddress: o.DepositAddress,
			TicketCount:    o.TicketCount,
		})
	}
	return resp
}

// ListMatches returns matches with pagination.
// GET /api/matches
func (h *MarketHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.markets.ListMatches(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.Error("list matches", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	resp := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, toMatchResponse(m, nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMatch returns a single match with its outcomes.
// GET /api/matches/{id}
func (h *MarketHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	match, outcomes, err := h.markets.GetMatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		h.logger.Error("get match", "match_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get match")
		return
	}

	writeJSON(w, http.StatusOK, toMatchResponse(match, outcomes))
}

// ListOutcomes returns just the score outcomes of a match.
// GET /api/matches/{id}/outcomes
func (h *MarketHandler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	_, outcomes, err := h.markets.GetMatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		h.logger.Error("list outcomes", "match_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list outcomes")
		return
	}

	resp := make([]outcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		resp = append(resp, outcomeResponse{
			ID:             o.ID,
			Score:          o.Score,
			DepositAddress: o.DepositAddress,
			TicketCount:    o.TicketCount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// createMatchRequest is the JSON body for match creation.
type createMatchRequest struct {
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	KickoffAt time.Time `json:"kickoff_at"`
	Scores    []string  `json:"scores"`
}

// CreateMatch creates a match with one deposit address per predicted score.
// POST /api/matches
func (h *MarketHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	match, outcomes, err := h.markets.CreateMatch(r.Context(), req.HomeTeam, req.AwayTeam, req.KickoffAt, req.Scores)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "match already exists")
			return
		}
		h.logger.Warn("create match rejected", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toMatchResponse(match, outcomes))
}

// settleRequest is the JSON body for settlement.
type settleRequest struct {
	WinningScore string `json:"winning_score"`
}

// payoutResponse is one line of the settlement payout schedule.
type payoutResponse struct {
	Address   string `json:"address"`
	Tickets   int64  `json:"tickets"`
	AmountBCH string `json:"amount_bch"`
}

// Settle settles a match and returns the payout schedule.
// POST /api/matches/{id}/settle
func (h *MarketHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WinningScore == "" {
		writeError(w, http.StatusBadRequest, "winning_score is required")
		return
	}

	settlement, err := h.markets.Settle(r.Context(), id, req.WinningScore)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "match or score not found")
		case errors.Is(err, domain.ErrMatchSettled):
			writeError(w, http.StatusConflict, "match already settled")
		case errors.Is(err, domain.ErrRateUnavailable):
			writeError(w, http.StatusServiceUnavailable, "exchange rate unavailable")
		default:
			h.logger.Error("settle match", "match_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to settle match")
		}
		return
	}

	payouts := make([]payoutResponse, 0, len(settlement.Payouts))
	for _, p := range settlement.Payouts {
		payouts = append(payouts, payoutResponse{
			Address:   p.Address,
			Tickets:   p.Tickets,
			AmountBCH: p.AmountBCH.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"match":   toMatchResponse(settlement.Match, nil),
		"winner":  settlement.Winner.Score,
		"payouts": payouts,
	})
}
