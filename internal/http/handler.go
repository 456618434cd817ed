package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/davidbz/symposium/internal/council"
	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	orchestrator *council.Orchestrator
	ledger       domain.UsageLedger
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(orchestrator *council.Orchestrator, ledger domain.UsageLedger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		ledger:       ledger,
	}
}

// TurnRequest is the body of POST /v1/turns.
type TurnRequest struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

// CreditRequest is the body of POST /v1/credits.
type CreditRequest struct {
	AmountUSD float64 `json:"amount_usd"`
}

// BalanceResponse is the body of GET /v1/balance and POST /v1/credits.
type BalanceResponse struct {
	AccountID         string  `json:"account_id"`
	BalanceMinorUnits int64   `json:"balance_minor_units"`
	BalanceUSD        float64 `json:"balance_usd"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleTurn processes one council turn.
func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = observability.GenerateRequestID()
	}

	accountID := observability.GetAccountID(ctx)
	logger := observability.FromContext(ctx)
	logger.Info("turn request received",
		observability.String("conversation_id", req.ConversationID))

	result, err := h.orchestrator.RunTurn(ctx, accountID, req.ConversationID, req.Query)
	if err != nil {
		logger.Error("turn failed", observability.Error(err))
		writeError(w, turnStatus(err), err.Error())
		return
	}

	logger.Info("turn succeeded",
		observability.Int("voices", len(result.Outcomes)),
		observability.Int64("balance", result.BalanceMinorUnits))

	writeJSON(w, http.StatusOK, result)
}

// HandleBalance reports the caller's current balance.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	accountID := observability.GetAccountID(ctx)
	acct, err := h.ledger.GetOrCreateAccount(ctx, accountID)
	if err != nil {
		observability.FromContext(ctx).Error("balance lookup failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, "balance lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		AccountID:         acct.ID,
		BalanceMinorUnits: acct.BalanceMinorUnits,
		BalanceUSD:        acct.BalanceUSD(),
	})
}

// HandleCredit tops up the caller's balance.
func (h *Handler) HandleCredit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	amountMinorUnits, err := domain.ValidateCreditUSD(req.AmountUSD)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	accountID := observability.GetAccountID(ctx)
	acct, err := h.ledger.Credit(ctx, accountID, amountMinorUnits)
	if err != nil {
		observability.FromContext(ctx).Error("credit failed", observability.Error(err))
		writeError(w, http.StatusInternalServerError, "credit failed")
		return
	}

	observability.FromContext(ctx).Info("account credited",
		observability.Int64("amount_minor_units", amountMinorUnits),
		observability.Int64("balance", acct.BalanceMinorUnits))

	writeJSON(w, http.StatusOK, BalanceResponse{
		AccountID:         acct.ID,
		BalanceMinorUnits: acct.BalanceMinorUnits,
		BalanceUSD:        acct.BalanceUSD(),
	})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

// turnStatus maps turn errors to HTTP statuses. An exhausted balance is the
// caller's problem (402), an unproducible consolidation is upstream's (502).
func turnStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUnknownPricing):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConsolidationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
