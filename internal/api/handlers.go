/**
 * @description
 * This file contains the HTTP handlers for the payout-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and write the HTTP response. Business-rule failures map to structured
 * error responses: invalid input is a 4xx, state conflicts are a 409, and
 * anything else is a 500 the caller may safely retry.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sailhaven/payout-service/internal/app"
	"github.com/sailhaven/payout-service/internal/domain"
	"github.com/sailhaven/payout-service/internal/store"
)

// PayoutHandlers holds the application service that handlers will use.
type PayoutHandlers struct {
	service *app.Service
}

// NewPayoutHandlers creates a new instance of PayoutHandlers.
func NewPayoutHandlers(service *app.Service) *PayoutHandlers {
	return &PayoutHandlers{service: service}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *PayoutHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
		}
	}
}

func (h *PayoutHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps domain/store errors onto HTTP statuses.
func (h *PayoutHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient available balance")
	case errors.Is(err, app.ErrAccountNotVerified):
		h.writeError(w, http.StatusUnprocessableEntity, "Payout account is not active and verified")
	case errors.Is(err, app.ErrBelowMinimumPayout):
		h.writeError(w, http.StatusUnprocessableEntity, "Amount is below the minimum payout amount")
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Amount must be positive")
	case errors.Is(err, app.ErrUnsupportedCurrency):
		h.writeError(w, http.StatusBadRequest, "Currency is not supported for payouts")
	case errors.Is(err, app.ErrUnsupportedMethod):
		h.writeError(w, http.StatusBadRequest, "Payout method is not supported")
	case errors.Is(err, app.ErrNotOwner):
		h.writeError(w, http.StatusForbidden, "Payout does not belong to this user")
	case errors.Is(err, app.ErrDisputeOpen):
		h.writeError(w, http.StatusConflict, "Payout has an unresolved dispute")
	case errors.Is(err, app.ErrDisputeRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many disputes opened; try again later")
	case errors.Is(err, domain.ErrBucketUnderflow):
		h.writeError(w, http.StatusUnprocessableEntity, "Ledger balance cannot cover this operation")
	case errors.Is(err, domain.ErrInvalidStateTransition):
		h.writeError(w, http.StatusConflict, "Invalid payout status transition")
	case errors.Is(err, domain.ErrTerminalState):
		h.writeError(w, http.StatusConflict, "Payout is in a terminal state")
	case errors.Is(err, store.ErrStatusConflict):
		h.writeError(w, http.StatusConflict, "Payout status changed concurrently; refetch and retry")
	case errors.Is(err, store.ErrAlreadyProcessed):
		h.writeError(w, http.StatusConflict, "Operation already processed")
	case errors.Is(err, store.ErrPayoutNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrSummaryNotFound),
		errors.Is(err, store.ErrDisputeNotFound),
		errors.Is(err, store.ErrSettingsNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("level=error component=api msg=\"internal error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal error; safe to retry")
	}
}

// authUserID resolves the authenticated subject into a user UUID.
func (h *PayoutHandlers) authUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSettingsHandler returns the platform payout policy. Admin-only.
func (h *PayoutHandlers) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// UpdateSettingsHandler replaces the platform payout policy. Admin-only.
func (h *PayoutHandlers) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get admin ID from context")
		return
	}

	var settings domain.PayoutSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdateSettings(r.Context(), &settings, adminID); err != nil {
		if errors.Is(err, store.ErrSettingsNotFound) {
			h.writeServiceError(w, err)
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// ---------------------------------------------------------------------------
// Payout accounts
// ---------------------------------------------------------------------------

type createAccountRequest struct {
	UserType string            `json:"user_type"`
	Method   string            `json:"method"`
	Currency string            `json:"currency"`
	Details  map[string]string `json:"account_details"`
}

// CreateAccountHandler registers (or returns) the caller's payout account
// for a method. New accounts start unverified.
func (h *PayoutHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	userType := domain.UserType(req.UserType)
	if userType != domain.UserTypeProducer && userType != domain.UserTypePartner {
		h.writeError(w, http.StatusBadRequest, "user_type must be producer or partner")
		return
	}
	if strings.TrimSpace(req.Method) == "" || strings.TrimSpace(req.Currency) == "" {
		h.writeError(w, http.StatusBadRequest, "method and currency are required")
		return
	}

	account, err := h.service.GetOrCreateAccount(r.Context(), userID, userType, req.Method, req.Currency, req.Details)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// ListAccountsHandler lists the caller's active payout accounts.
func (h *PayoutHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

type verifyAccountRequest struct {
	Verified bool    `json:"verified"`
	Notes    *string `json:"notes,omitempty"`
}

// VerifyAccountHandler marks an account verified or unverified. Admin-only.
func (h *PayoutHandlers) VerifyAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	var req verifyAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.VerifyAccount(r.Context(), accountID, req.Verified, req.Notes); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"verified": req.Verified})
}

// ---------------------------------------------------------------------------
// Earnings summary
// ---------------------------------------------------------------------------

// GetSummaryHandler returns the caller's earnings summary.
func (h *PayoutHandlers) GetSummaryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.GetSummary(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// ---------------------------------------------------------------------------
// Payout transactions
// ---------------------------------------------------------------------------

type createPayoutRequest struct {
	AccountID   uuid.UUID   `json:"account_id"`
	Amount      int64       `json:"amount"`
	Description string      `json:"description"`
	BookingIDs  []uuid.UUID `json:"related_booking_ids,omitempty"`
}

// CreatePayoutHandler creates a payout transaction against the caller's
// available balance.
func (h *PayoutHandlers) CreatePayoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}

	var req createPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payout, err := h.service.CreatePayout(r.Context(), userID, req.AccountID, req.Amount, req.Description, req.BookingIDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payout)
}

// ListPayoutsHandler lists the caller's payout transactions with optional
// status and date filters.
func (h *PayoutHandlers) ListPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}

	filter := domain.TransactionFilter{UserID: &userID}
	if s := r.URL.Query().Get("status"); s != "" {
		if !domain.ValidStatus(s) {
			h.writeError(w, http.StatusBadRequest, "Unknown status filter")
			return
		}
		status := domain.PayoutStatus(s)
		filter.Status = &status
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid from timestamp")
			return
		}
		filter.From = &t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid to timestamp")
			return
		}
		filter.To = &t
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = n
	}

	payouts, err := h.service.ListPayouts(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payouts)
}

// GetPayoutHandler returns a single payout transaction owned by the caller.
func (h *PayoutHandlers) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}
	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := h.service.GetPayout(r.Context(), payoutID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if payout.UserID != userID {
		h.writeError(w, http.StatusForbidden, "Payout does not belong to this user")
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

type updateStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// UpdatePayoutStatusHandler drives a payout through the state machine. Admin-only.
func (h *PayoutHandlers) UpdatePayoutStatusHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get admin ID from context")
		return
	}
	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !domain.ValidStatus(req.Status) {
		h.writeError(w, http.StatusBadRequest, "Unknown payout status")
		return
	}

	if err := h.service.UpdatePayoutStatus(r.Context(), payoutID, domain.PayoutStatus(req.Status), adminID, req.Notes); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// ---------------------------------------------------------------------------
// Disputes
// ---------------------------------------------------------------------------

type openDisputeRequest struct {
	Reason string `json:"reason"`
}

// OpenDisputeHandler opens a dispute on the caller's own payout, suspending
// its funds on hold.
func (h *PayoutHandlers) OpenDisputeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserID(w, r)
	if !ok {
		return
	}
	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	var req openDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		h.writeError(w, http.StatusBadRequest, "Dispute reason is required")
		return
	}

	dispute, err := h.service.OpenDispute(r.Context(), payoutID, userID, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, dispute)
}

type resolveDisputeRequest struct {
	Resolution string `json:"resolution"`
	Outcome    string `json:"outcome"` // resolved | rejected
}

// ResolveDisputeHandler resolves a dispute and its parent payout in one
// atomic unit. Admin-only.
func (h *PayoutHandlers) ResolveDisputeHandler(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get admin ID from context")
		return
	}
	disputeID, err := uuid.Parse(chi.URLParam(r, "disputeID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid dispute ID")
		return
	}

	var req resolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	outcome := domain.DisputeStatus(req.Outcome)
	if outcome != domain.DisputeResolved && outcome != domain.DisputeRejected {
		h.writeError(w, http.StatusBadRequest, "Outcome must be resolved or rejected")
		return
	}

	if err := h.service.ResolveDispute(r.Context(), disputeID, req.Resolution, outcome, adminID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"outcome": req.Outcome})
}

// ---------------------------------------------------------------------------
// Earnings calculation (internal)
// ---------------------------------------------------------------------------

// CalculateEarningsHandler runs the earnings calculator. Called by the
// scheduler or another service with the internal API key; idempotent.
func (h *PayoutHandlers) CalculateEarningsHandler(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid user ID")
			return
		}
		userID = &parsed
	}

	credited, err := h.service.CalculateEarnings(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"credited_bookings": credited})
}
