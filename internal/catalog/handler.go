package catalog

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

type ProductStore interface {
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) error
	SetActive(ctx context.Context, productID, vendorID string, active bool) error
	Approve(ctx context.Context, productID string) error
	Reject(ctx context.Context, productID, reason string) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	ListPublic(ctx context.Context) ([]domain.Product, error)
	ListByVendor(ctx context.Context, vendorID string) ([]domain.Product, error)
	ListPendingApproval(ctx context.Context) ([]domain.Product, error)
	Search(ctx context.Context, query string) ([]domain.Product, error)
	AddReview(ctx context.Context, productID, userID string, rating int, comment string) (*domain.Review, error)
	ApproveVendor(ctx context.Context, vendorID string) error
	RejectVendor(ctx context.Context, vendorID, reason string) error
	ListVendors(ctx context.Context) ([]domain.User, error)
}

type Handler struct {
	store  ProductStore
	logger *slog.Logger
}

func NewHandler(store ProductStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

type productRequest struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Price           int64          `json:"price"`
	Stock           int            `json:"stock"`
	Category        string         `json:"category"`
	Images          []domain.Image `json:"images"`
	ReplacementDays int            `json:"replacement_days"`
	FreeDelivery    bool           `json:"free_delivery"`
	PayOnDelivery   bool           `json:"pay_on_delivery"`
	Warranty        string         `json:"warranty"`
	DetailPoints    []string       `json:"detail_points"`
}

func (req *productRequest) validate() string {
	switch {
	case req.Title == "":
		return "title is required"
	case req.Description == "":
		return "description is required"
	case req.Category == "":
		return "category is required"
	case req.Price <= 0:
		return "price must be positive"
	case req.Stock < 0:
		return "stock cannot be negative"
	case req.ReplacementDays < 0:
		return "replacement_days cannot be negative"
	}
	return ""
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	product := &domain.Product{
		VendorID:        id.UserID,
		Title:           req.Title,
		Description:     req.Description,
		Price:           req.Price,
		Stock:           req.Stock,
		Category:        req.Category,
		Images:          req.Images,
		ReplacementDays: req.ReplacementDays,
		FreeDelivery:    req.FreeDelivery,
		PayOnDelivery:   req.PayOnDelivery,
		Warranty:        req.Warranty,
		DetailPoints:    req.DetailPoints,
	}

	if err := h.store.Create(r.Context(), product); err != nil {
		h.logger.Error("failed to create product", "error", err, "vendor_id", id.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "vendor_id", id.UserID)
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	productID := chi.URLParam(r, "id")

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	product := &domain.Product{
		ID:              productID,
		VendorID:        id.UserID,
		Title:           req.Title,
		Description:     req.Description,
		Price:           req.Price,
		Stock:           req.Stock,
		Category:        req.Category,
		Images:          req.Images,
		ReplacementDays: req.ReplacementDays,
		FreeDelivery:    req.FreeDelivery,
		PayOnDelivery:   req.PayOnDelivery,
		Warranty:        req.Warranty,
		DetailPoints:    req.DetailPoints,
	}

	if err := h.store.Update(r.Context(), product); err != nil {
		h.writeStoreError(w, err, "failed to update product")
		return
	}

	updated, err := h.store.GetByID(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to reload product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product updated", "product_id", productID, "vendor_id", id.UserID)
	h.writeJSON(w, http.StatusOK, updated)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	productID := chi.URLParam(r, "id")

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.SetActive(r.Context(), productID, id.UserID, req.Active); err != nil {
		h.writeStoreError(w, err, "failed to toggle product")
		return
	}

	h.logger.Info("product active toggled", "product_id", productID, "active", req.Active)
	h.writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	product, err := h.store.GetByID(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleListPublic(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListPublic(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleListVendorProducts(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	products, err := h.store.ListByVendor(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to list vendor products", "error", err, "vendor_id", id.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	products, err := h.store.Search(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to search products", "error", err, "query", query)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *Handler) HandleAddReview(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	productID := chi.URLParam(r, "id")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		h.writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	if req.Comment == "" {
		h.writeError(w, http.StatusBadRequest, "comment is required")
		return
	}

	review, err := h.store.AddReview(r.Context(), productID, id.UserID, req.Rating, req.Comment)
	if err != nil {
		h.writeStoreError(w, err, "failed to add review")
		return
	}

	h.logger.Info("review added", "product_id", productID, "user_id", id.UserID, "rating", req.Rating)
	h.writeJSON(w, http.StatusCreated, review)
}

// Admin surface.

func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListPendingApproval(r.Context())
	if err != nil {
		h.logger.Error("failed to list pending products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

type approvalRequest struct {
	Status domain.VerificationStatus `json:"status"`
	Reason string                    `json:"reason,omitempty"`
}

func (h *Handler) HandleProductApproval(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch req.Status {
	case domain.VerificationApproved:
		err = h.store.Approve(r.Context(), productID)
	case domain.VerificationRejected:
		if req.Reason == "" {
			h.writeError(w, http.StatusBadRequest, "rejection reason is required")
			return
		}
		err = h.store.Reject(r.Context(), productID, req.Reason)
	default:
		h.writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}
	if err != nil {
		h.writeStoreError(w, err, "failed to update product approval")
		return
	}

	h.logger.Info("product approval updated", "product_id", productID, "status", req.Status)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (h *Handler) HandleListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.store.ListVendors(r.Context())
	if err != nil {
		h.logger.Error("failed to list vendors", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, vendors)
}

func (h *Handler) HandleVendorApproval(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch req.Status {
	case domain.VerificationApproved:
		err = h.store.ApproveVendor(r.Context(), vendorID)
	case domain.VerificationRejected:
		if req.Reason == "" {
			h.writeError(w, http.StatusBadRequest, "rejection reason is required")
			return
		}
		err = h.store.RejectVendor(r.Context(), vendorID, req.Reason)
	default:
		h.writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}
	if err != nil {
		h.writeStoreError(w, err, "failed to update vendor approval")
		return
	}

	h.logger.Info("vendor approval updated", "vendor_id", vendorID, "status", req.Status)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, ErrVendorNotFound):
		h.writeError(w, http.StatusNotFound, "vendor not found")
	case errors.Is(err, ErrNotOwner):
		h.writeError(w, http.StatusForbidden, "not your product")
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
