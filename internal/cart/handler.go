package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tanmaydg/bazario/internal/auth"
	"github.com/tanmaydg/bazario/internal/domain"
)

type CartStore interface {
	AddItem(ctx context.Context, userID, productID string, quantity, newQty int) error
	RemoveItem(ctx context.Context, userID, productID string) error
	List(ctx context.Context, userID string) ([]domain.CartLine, error)
}

type Handler struct {
	store  CartStore
	logger *slog.Logger
}

func NewHandler(store CartStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	NewQty    int    `json:"new_qty,omitempty"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" || (req.Quantity <= 0 && req.NewQty <= 0) {
		h.writeError(w, http.StatusBadRequest, "product_id and quantity are required")
		return
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	if err := h.store.AddItem(r.Context(), id.UserID, req.ProductID, quantity, req.NewQty); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to add cart item", "error", err, "user_id", id.UserID, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "user_id", id.UserID, "product_id", req.ProductID)
	h.handleList(w, r, id.UserID)
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	productID := chi.URLParam(r, "productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	if err := h.store.RemoveItem(r.Context(), id.UserID, productID); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			h.writeError(w, http.StatusNotFound, "cart item not found")
			return
		}
		h.logger.Error("failed to remove cart item", "error", err, "user_id", id.UserID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item removed", "user_id", id.UserID, "product_id", productID)
	h.handleList(w, r, id.UserID)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.handleList(w, r, id.UserID)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, userID string) {
	lines, err := h.store.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, lines)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
