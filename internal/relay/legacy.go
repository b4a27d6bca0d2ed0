package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tanmaydg/bazario/internal/domain"
)

// LegacyHandler keeps the old push endpoints alive for callers that
// have not migrated to the Kafka intake. Each endpoint accepts a small
// JSON body and republishes it through the hub.
type LegacyHandler struct {
	hub    Publisher
	logger *slog.Logger
}

func NewLegacyHandler(hub Publisher, logger *slog.Logger) *LegacyHandler {
	return &LegacyHandler{hub: hub, logger: logger}
}

type legacyPush struct {
	UserID   string             `json:"user_id"`
	VendorID string             `json:"vendor_id,omitempty"`
	OrderID  string             `json:"order_id"`
	Status   domain.OrderStatus `json:"status,omitempty"`
}

func (p *legacyPush) validate() string {
	switch {
	case p.UserID == "":
		return "user_id is required"
	case p.OrderID == "":
		return "order_id is required"
	}
	return ""
}

func (h *LegacyHandler) HandleStatusUpdate(w http.ResponseWriter, r *http.Request) {
	h.push(w, r, string(domain.EventStatusUpdated), true)
}

func (h *LegacyHandler) HandleOrderCancelled(w http.ResponseWriter, r *http.Request) {
	h.push(w, r, string(domain.EventOrderCancelled), false)
}

func (h *LegacyHandler) HandleOrderReturned(w http.ResponseWriter, r *http.Request) {
	h.push(w, r, string(domain.EventOrderReturned), false)
}

func (h *LegacyHandler) push(w http.ResponseWriter, r *http.Request, event string, needStatus bool) {
	var req legacyPush
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}
	if needStatus && req.Status == "" {
		h.writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	data, err := json.Marshal(req)
	if err != nil {
		h.logger.Error("failed to marshal push payload", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.hub.Publish(r.Context(), req.UserID, event, data); err != nil {
		h.logger.Error("failed to publish push event", "error", err, "event", event)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if req.VendorID != "" {
		if err := h.hub.Publish(r.Context(), req.VendorID, event, data); err != nil {
			h.logger.Error("failed to publish push event to vendor", "error", err, "event", event)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

func (h *LegacyHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *LegacyHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
