package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/datagaffer/billing-api/internal/domain/billing"
	"github.com/datagaffer/billing-api/internal/types"
)

// Stripe webhook payloads are small; anything past this is not a legitimate
// delivery.
const maxWebhookBodyBytes = int64(65536)

const maxRequestBodyBytes = int64(1 << 20)

// BillingHandler exposes the webhook and session endpoints over HTTP.
type BillingHandler struct {
	reconciler *billing.Reconciler
	issuer     *billing.SessionIssuer
	logger     *slog.Logger
}

func NewBillingHandler(reconciler *billing.Reconciler, issuer *billing.SessionIssuer, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		reconciler: reconciler,
		issuer:     issuer,
		logger:     logger,
	}
}

// HandleWebhook consumes one Stripe delivery. The body must reach the
// reconciler as the exact bytes transmitted; any re-encoding breaks
// signature verification.
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	outcome, err := h.reconciler.ProcessWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, types.ErrAuthentication):
			writeError(w, http.StatusBadRequest, "signature verification failed")
		case errors.Is(err, types.ErrValidation):
			writeError(w, http.StatusBadRequest, "invalid event payload")
		default:
			// Store or processor failure: non-2xx so Stripe redelivers.
			writeError(w, http.StatusInternalServerError, "failed to process event")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"status":   string(outcome),
	})
}

// HandleCreateCheckout starts a checkout session for a named plan.
func (h *BillingHandler) HandleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req types.CreateCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.issuer.CreateCheckout(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleCreatePortal starts a billing-portal session, or points the caller
// at the subscribe flow when no customer exists yet.
func (h *BillingHandler) HandleCreatePortal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req types.CreatePortalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.issuer.CreatePortal(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BillingHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrUpstream):
		writeError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "billing request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}
