package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tanmaydg/bazario/internal/auth"
	"github.com/tanmaydg/bazario/internal/domain"
)

// OrderStore is the persistence surface the handler needs. It is
// implemented by *OrderRepository; tests substitute a fake.
type OrderStore interface {
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error)
	Transition(ctx context.Context, orderID string, to domain.OrderStatus) (*domain.Order, error)
	IssueOtp(ctx context.Context, orderID, otp string, expiresAt time.Time) (*domain.Order, error)
	VerifyDelivery(ctx context.Context, orderID, otp string, now time.Time) (*domain.Order, error)
	Cancel(ctx context.Context, orderID string, now time.Time) (*domain.Order, error)
	Return(ctx context.Context, orderID string, now time.Time) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)
	ListByVendor(ctx context.Context, vendorID string) ([]domain.Order, error)
	ReplacementDays(ctx context.Context, productID string) (int, error)
}

// CheckoutStarter creates a gateway checkout session for a card order
// and returns the redirect URL the buyer completes payment on.
type CheckoutStarter interface {
	CreateCheckoutSession(ctx context.Context, orderID, productTitle string, amount int64) (string, error)
}

type Handler struct {
	store    OrderStore
	checkout CheckoutStarter
	logger   *slog.Logger
}

func NewHandler(store OrderStore, checkout CheckoutStarter, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		checkout: checkout,
		logger:   logger,
	}
}

type placeOrderRequest struct {
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	Address        *domain.Address `json:"address"`
	Amount         int64           `json:"amount"`
	DeliveryCharge int64           `json:"delivery_charge"`
	ServiceCharge  int64           `json:"service_charge"`
	PaymentMethod  string          `json:"payment_method"`
}

func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ProductID == "" || req.Quantity <= 0 || req.Address == nil {
		h.writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}
	if req.Address.Name == "" || req.Address.Phone == "" || req.Address.Address == "" ||
		req.Address.City == "" || req.Address.Pincode == "" {
		h.writeError(w, http.StatusBadRequest, "all address fields are required")
		return
	}

	method := domain.PaymentMethod(req.PaymentMethod)
	if method != domain.PaymentMethodCOD && method != domain.PaymentMethodOnline {
		h.writeError(w, http.StatusBadRequest, "payment_method must be cod or online")
		return
	}

	order, err := h.store.PlaceOrder(r.Context(), PlaceOrderInput{
		BuyerID:        id.UserID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Address:        *req.Address,
		Amount:         req.Amount,
		DeliveryCharge: req.DeliveryCharge,
		ServiceCharge:  req.ServiceCharge,
		PaymentMethod:  method,
	})
	if err != nil {
		h.writeStoreError(w, err, "failed to place order")
		return
	}

	if method == domain.PaymentMethodOnline {
		url, err := h.checkout.CreateCheckoutSession(r.Context(), order.ID, order.Items[0].Title, order.TotalAmount)
		if err != nil {
			h.logger.Error("failed to create checkout session", "error", err, "order_id", order.ID)
			h.writeError(w, http.StatusBadGateway, "payment gateway unavailable")
			return
		}
		h.logger.Info("online order placed", "order_id", order.ID, "buyer_id", order.BuyerID)
		h.writeJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	}

	h.logger.Info("order placed", "order_id", order.ID, "buyer_id", order.BuyerID)
	h.writeJSON(w, http.StatusCreated, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, _ := auth.FromContext(r.Context())
	if err := h.requireVendor(r.Context(), w, orderID, id); err != nil {
		return
	}

	switch req.Status {
	case domain.OrderStatusConfirmed, domain.OrderStatusShipped:
		order, err := h.store.Transition(r.Context(), orderID, req.Status)
		if err != nil {
			h.writeStoreError(w, err, "failed to update order status")
			return
		}
		h.logger.Info("order status updated", "order_id", order.ID, "status", order.OrderStatus)
		h.writeJSON(w, http.StatusOK, order)

	case domain.OrderStatusDelivered:
		// Delivery is only claimed here. The status flips once the
		// buyer-side code is verified.
		otp, err := GenerateOtp()
		if err != nil {
			h.logger.Error("failed to generate delivery otp", "error", err, "order_id", orderID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		order, err := h.store.IssueOtp(r.Context(), orderID, otp, time.Now().UTC().Add(OtpTTL))
		if err != nil {
			h.writeStoreError(w, err, "failed to issue delivery otp")
			return
		}
		h.logger.Info("delivery otp issued", "order_id", order.ID)
		h.writeJSON(w, http.StatusOK, order)

	default:
		h.writeError(w, http.StatusBadRequest, "invalid status")
	}
}

type verifyDeliveryRequest struct {
	Otp string `json:"otp"`
}

func (h *Handler) HandleVerifyDelivery(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req verifyDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Otp == "" {
		h.writeError(w, http.StatusBadRequest, "otp is required")
		return
	}

	order, err := h.store.VerifyDelivery(r.Context(), orderID, req.Otp, time.Now().UTC())
	if err != nil {
		h.writeStoreError(w, err, "failed to verify delivery")
		return
	}

	h.logger.Info("delivery verified", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	id, _ := auth.FromContext(r.Context())
	if err := h.requireBuyer(r.Context(), w, orderID, id); err != nil {
		return
	}

	order, err := h.store.Cancel(r.Context(), orderID, time.Now().UTC())
	if err != nil {
		h.writeStoreError(w, err, "failed to cancel order")
		return
	}

	h.logger.Info("order cancelled", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	id, _ := auth.FromContext(r.Context())
	if err := h.requireBuyer(r.Context(), w, orderID, id); err != nil {
		return
	}

	order, err := h.store.Return(r.Context(), orderID, time.Now().UTC())
	if err != nil {
		h.writeStoreError(w, err, "failed to return order")
		return
	}

	h.logger.Info("order returned", "order_id", order.ID, "returned_amount", order.ReturnedAmount)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), orderID)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	id, _ := auth.FromContext(r.Context())
	if id.UserID != order.BuyerID && id.UserID != order.VendorID && id.Role != domain.RoleAdmin {
		h.writeError(w, http.StatusForbidden, "not your order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.store.ListByBuyer(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "buyer_id", id.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.store.ListByVendor(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to list vendor orders", "error", err, "vendor_id", id.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// HandleReturnEligibility reports whether the order's product can still
// be returned, for the UI to decide whether to offer the action.
func (h *Handler) HandleReturnEligibility(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), orderID)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if order.OrderStatus != domain.OrderStatusDelivered || order.DeliveryDate == nil || len(order.Items) == 0 {
		h.writeJSON(w, http.StatusOK, ReturnEligibility{})
		return
	}

	days, err := h.store.ReplacementDays(r.Context(), order.Items[0].ProductID)
	if err != nil {
		h.writeStoreError(w, err, "failed to read replacement window")
		return
	}

	h.writeJSON(w, http.StatusOK, ComputeReturnEligibility(*order.DeliveryDate, days, time.Now().UTC()))
}

func (h *Handler) requireVendor(ctx context.Context, w http.ResponseWriter, orderID string, id auth.Identity) error {
	order, err := h.store.GetByID(ctx, orderID)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return err
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return ErrOrderNotFound
	}
	if order.VendorID != id.UserID && id.Role != domain.RoleAdmin {
		h.writeError(w, http.StatusForbidden, "not your order")
		return errors.New("forbidden")
	}
	return nil
}

func (h *Handler) requireBuyer(ctx context.Context, w http.ResponseWriter, orderID string, id auth.Identity) error {
	order, err := h.store.GetByID(ctx, orderID)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return err
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return ErrOrderNotFound
	}
	if order.BuyerID != id.UserID {
		h.writeError(w, http.StatusForbidden, "not your order")
		return errors.New("forbidden")
	}
	return nil
}

// writeStoreError maps domain errors to HTTP responses. Business-rule
// rejections carry their specific reason; anything unexpected is logged
// and surfaced generically.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrCartItemNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrAmountMismatch):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidOtp):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotCancellable),
		errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrAlreadyReturned),
		errors.Is(err, ErrNotDelivered),
		errors.Is(err, ErrTransitionBlocked):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
