package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/scorechain/bchbet/internal/domain"
)

// LedgerHandler serves read access to committed bet transactions.
type LedgerHandler struct {
	ledger   domain.Ledger
	outcomes domain.OutcomeStore
	logger   *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ledger domain.Ledger, outcomes domain.OutcomeStore, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:   ledger,
		outcomes: outcomes,
		logger:   logger.With(slog.String("handler", "ledger")),
	}
}

// transactionResponse is the JSON shape of a committed transaction.
type transactionResponse struct {
	Hash           string    `json:"tx_hash"`
	DepositAddress string    `json:"deposit_address"`
	OriginAddress  string    `json:"origin_address,omitempty"`
	AmountSatoshi  int64     `json:"amount_satoshi"`
	Tickets        int64     `json:"tickets"`
	Timestamp      time.Time `json:"timestamp"`
}

func toTransactionResponses(txs []domain.BetTransaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			Hash:           t.Hash,
			DepositAddress: t.DepositAddress,
			OriginAddress:  t.OriginAddress,
			AmountSatoshi:  t.AmountSatoshi,
			Tickets:        t.Tickets,
			Timestamp:      t.Timestamp,
		})
	}
	return out
}

// ListByOutcome returns all committed transactions for an outcome.
// GET /api/outcomes/{id}/transactions
func (h *LedgerHandler) ListByOutcome(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.outcomes.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "outcome not found")
			return
		}
		h.logger.Error("get outcome", "outcome_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get outcome")
		return
	}

	txs, err := h.ledger.ListByOutcome(r.Context(), id)
	if err != nil {
		h.logger.Error("list transactions", "outcome_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponses(txs))
}

// ListByAddress returns committed transactions for a deposit address.
// GET /api/addresses/{address}/transactions
func (h *LedgerHandler) ListByAddress(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	txs, err := h.ledger.ListByAddress(r.Context(), address, parseListOpts(r))
	if err != nil {
		h.logger.Error("list transactions", "address", address, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponses(txs))
}
