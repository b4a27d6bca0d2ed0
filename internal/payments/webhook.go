// Package payments reconciles card payments with orders. Checkout
// session creation and the payment flow itself belong to the external
// gateway; this package only starts sessions and consumes the
// gateway's signed completion events.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tanmaydg/bazario/internal/domain"
	"github.com/tanmaydg/bazario/internal/orders"
)

// SignatureHeader carries the gateway's payload signature.
const SignatureHeader = "Bazario-Signature"

const eventCheckoutCompleted = "checkout.session.completed"

type gatewayEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

type PaymentStore interface {
	MarkPaid(ctx context.Context, orderID string) (*domain.Order, error)
}

type WebhookHandler struct {
	store  PaymentStore
	secret []byte
	logger *slog.Logger
}

func NewWebhookHandler(store PaymentStore, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		store:  store,
		secret: []byte(secret),
		logger: logger,
	}
}

// ServeHTTP consumes a signed gateway event. Forged or stale payloads
// are rejected with 400 so the gateway retries instead of being told a
// delivery it never made succeeded. Events other than checkout
// completion are acknowledged and ignored.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := VerifySignature(r.Header.Get(SignatureHeader), body, h.secret, time.Now()); err != nil {
		h.logger.Error("webhook signature rejected", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	var event gatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if event.Type != eventCheckoutCompleted {
		h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	orderID := event.Data.Object.Metadata.OrderID
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "event missing order id")
		return
	}

	if _, err := h.store.MarkPaid(r.Context(), orderID); err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("failed to mark order paid", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order marked paid", "order_id", orderID, "session_id", event.Data.Object.ID)
	h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
