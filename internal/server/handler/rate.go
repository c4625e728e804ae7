package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/scorechain/bchbet/internal/domain"
)

// RateSource supplies the current exchange rate.
type RateSource interface {
	Current(ctx context.Context) (domain.ExchangeRate, error)
}

// RateHandler serves the current BCH/USD exchange rate.
type RateHandler struct {
	rates  RateSource
	logger *slog.Logger
}

// NewRateHandler creates a RateHandler.
func NewRateHandler(rates RateSource, logger *slog.Logger) *RateHandler {
	return &RateHandler{
		rates:  rates,
		logger: logger.With(slog.String("handler", "rate")),
	}
}

// GetRate returns the most recent exchange-rate snapshot.
// GET /api/rate
func (h *RateHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.rates.Current(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRateUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "exchange rate unavailable")
			return
		}
		h.logger.Error("get rate", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get rate")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rate":        rate.Rate.String(),
		"captured_at": rate.CapturedAt.Format(time.RFC3339),
	})
}
