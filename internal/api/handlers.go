/**
 * @description
 * This file contains the HTTP handlers for the deposit-service's API endpoints.
 * Handlers are responsible for decoding requests, calling the application
 * service, and encoding responses.
 *
 * The webhook handler speaks Payscribe's acknowledgement contract: a JSON body
 * with a boolean `status` and a `message`, where duplicates are acknowledged
 * with 200 so the aggregator stops redelivering.
 *
 * @dependencies
 * - internal/app: The application service containing the core business logic.
 * - internal/domain, internal/store: Domain models and sentinel errors.
 * - github.com/google/uuid: For parsing user IDs.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/Amhaztech0/HazPay-sub000/internal/app"
	"github.com/Amhaztech0/HazPay-sub000/internal/domain"
	"github.com/Amhaztech0/HazPay-sub000/internal/store"
)

// DepositHandlers holds dependencies for the HTTP handlers.
type DepositHandlers struct {
	Service *app.Service
}

// NewDepositHandlers creates a new DepositHandlers struct.
func NewDepositHandlers(service *app.Service) *DepositHandlers {
	return &DepositHandlers{Service: service}
}

// webhookAck is the acknowledgement body Payscribe expects.
type webhookAck struct {
	Status         bool        `json:"status"`
	Message        string      `json:"message"`
	TransID        string      `json:"trans_id,omitempty"`
	AmountCredited json.Number `json:"amount_credited,omitempty"`
	NewBalance     *int64      `json:"new_balance,omitempty"`
}

// WebhookHandler handles POST /webhooks/payscribe. It verifies the payload
// signature, applies the deposit atomically, and acknowledges per Payscribe's
// contract. Duplicates get 200 so the aggregator does not retry forever.
func (h *DepositHandlers) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	var webhook domain.PayscribeWebhook
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&webhook); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookAck{Status: false, Message: "Invalid webhook payload"})
		return
	}

	result, err := h.Service.ProcessDepositWebhook(r.Context(), &webhook)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMalformedWebhook):
			writeJSON(w, http.StatusBadRequest, webhookAck{Status: false, Message: "Invalid webhook payload"})
		case errors.Is(err, app.ErrHashVerificationFailed):
			writeJSON(w, http.StatusBadRequest, webhookAck{Status: false, Message: "Hash verification failed"})
		case errors.Is(err, store.ErrDuplicateTransaction):
			writeJSON(w, http.StatusOK, webhookAck{Status: true, Message: "Duplicate transaction (already processed)"})
		case errors.Is(err, store.ErrVirtualAccountNotFound):
			writeJSON(w, http.StatusNotFound, webhookAck{Status: false, Message: "Virtual account not found"})
		case errors.Is(err, store.ErrAmountMismatch):
			writeJSON(w, http.StatusBadRequest, webhookAck{Status: false, Message: "Amount mismatch"})
		default:
			log.Printf("level=error component=api msg=\"webhook processing failed\" trans_id=%s err=%v", webhook.TransID, err)
			writeJSON(w, http.StatusInternalServerError, webhookAck{Status: false, Message: "Internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, webhookAck{
		Status:         true,
		Message:        "Webhook processed successfully",
		TransID:        result.Deposit.TransID,
		AmountCredited: webhook.Amount,
		NewBalance:     &result.NewBalanceKobo,
	})
}

// createVirtualAccountRequest is the payload for the internal issuance endpoint.
type createVirtualAccountRequest struct {
	UserID      string  `json:"user_id"`
	Amount      float64 `json:"amount"`
	AmountType  string  `json:"amount_type,omitempty"`
	Description string  `json:"description,omitempty"`
	ExpiryHours int     `json:"expiry_hours,omitempty"`
}

// CreateVirtualAccountHandler handles POST /deposits/virtual-accounts. It is
// an internal server-to-server endpoint guarded by the shared API key.
func (h *DepositHandlers) CreateVirtualAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createVirtualAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user_id")
		return
	}

	account, err := h.Service.CreateVirtualAccount(r.Context(), domain.CreateVirtualAccountParams{
		UserID:      userID,
		Amount:      req.Amount,
		AmountType:  req.AmountType,
		Description: req.Description,
		ExpiryHours: req.ExpiryHours,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidIssuanceRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrIssuerUnavailable):
			writeError(w, http.StatusServiceUnavailable, "Virtual account issuance is unavailable")
		default:
			log.Printf("level=error component=api msg=\"virtual account issuance failed\" user_id=%s err=%v", userID, err)
			writeError(w, http.StatusBadGateway, "Failed to create virtual account")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    account,
	})
}

// ListDepositsHandler handles GET /deposits. Admin only.
func (h *DepositHandlers) ListDepositsHandler(w http.ResponseWriter, r *http.Request) {
	userID, limit, offset, ok := parseListQuery(w, r)
	if !ok {
		return
	}

	deposits, err := h.Service.ListDeposits(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to list deposits\" user_id=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list deposits")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    deposits,
	})
}

// ListVirtualAccountsHandler handles GET /deposits/virtual-accounts. Admin only.
func (h *DepositHandlers) ListVirtualAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, limit, offset, ok := parseListQuery(w, r)
	if !ok {
		return
	}

	accounts, err := h.Service.ListVirtualAccounts(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to list virtual accounts\" user_id=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list virtual accounts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    accounts,
	})
}

// HealthCheckHandler provides a simple health check endpoint.
func (h *DepositHandlers) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseListQuery extracts the user_id, limit, and offset query parameters used
// by the listing endpoints. It writes the error response itself on failure.
func parseListQuery(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, int, bool) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "A valid user_id query parameter is required")
		return uuid.Nil, 0, 0, false
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return userID, limit, offset, true
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to write json response\" err=%v", err)
	}
}

// writeError is a helper to write JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"message": message,
		},
	})
}
