package cart

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanmaydg/bazario/internal/auth"
	"github.com/tanmaydg/bazario/internal/domain"
)

// fakeCartStore keeps one user's cart in memory, mirroring the upsert
// semantics of the SQL layer.
type fakeCartStore struct {
	products map[string]domain.Product
	items    map[string]int
}

func newFakeCartStore(products ...domain.Product) *fakeCartStore {
	s := &fakeCartStore{products: map[string]domain.Product{}, items: map[string]int{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (f *fakeCartStore) AddItem(_ context.Context, _, productID string, quantity, newQty int) error {
	if _, ok := f.products[productID]; !ok {
		return ErrProductNotFound
	}
	if newQty > 0 {
		f.items[productID] = newQty
		return nil
	}
	f.items[productID] += quantity
	return nil
}

func (f *fakeCartStore) RemoveItem(_ context.Context, _, productID string) error {
	if _, ok := f.items[productID]; !ok {
		return ErrItemNotFound
	}
	delete(f.items, productID)
	return nil
}

func (f *fakeCartStore) List(_ context.Context, _ string) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	for id, qty := range f.items {
		lines = append(lines, domain.CartLine{Product: f.products[id], Quantity: qty})
	}
	return lines, nil
}

func newTestHandler(store CartStore) *Handler {
	return NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func authedRequest(method, target, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	return req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "user-1", Role: domain.RoleUser}))
}

func decodeLines(t *testing.T, rec *httptest.ResponseRecorder) []domain.CartLine {
	t.Helper()
	var lines []domain.CartLine
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	return lines
}

func TestHandler_HandleAdd(t *testing.T) {
	widget := domain.Product{ID: "prod-1", Title: "Widget", Price: 500}

	t.Run("adds an item and returns the cart", func(t *testing.T) {
		handler := newTestHandler(newFakeCartStore(widget))

		rec := httptest.NewRecorder()
		handler.HandleAdd(rec, authedRequest(http.MethodPost, "/cart/items", `{"product_id":"prod-1","quantity":2}`))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		lines := decodeLines(t, rec)
		require.Len(t, lines, 1)
		assert.Equal(t, 2, lines[0].Quantity)
		assert.Equal(t, "Widget", lines[0].Product.Title)
	})

	t.Run("defaults to quantity one", func(t *testing.T) {
		store := newFakeCartStore(widget)
		handler := newTestHandler(store)

		rec := httptest.NewRecorder()
		handler.HandleAdd(rec, authedRequest(http.MethodPost, "/cart/items", `{"product_id":"prod-1","new_qty":3}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, store.items["prod-1"])
	})

	t.Run("repeated adds accumulate", func(t *testing.T) {
		store := newFakeCartStore(widget)
		handler := newTestHandler(store)

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.HandleAdd(rec, authedRequest(http.MethodPost, "/cart/items", `{"product_id":"prod-1","quantity":1}`))
			require.Equal(t, http.StatusOK, rec.Code)
		}
		assert.Equal(t, 3, store.items["prod-1"])
	})

	t.Run("unknown product returns 404", func(t *testing.T) {
		handler := newTestHandler(newFakeCartStore())

		rec := httptest.NewRecorder()
		handler.HandleAdd(rec, authedRequest(http.MethodPost, "/cart/items", `{"product_id":"missing","quantity":1}`))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects missing product id", func(t *testing.T) {
		handler := newTestHandler(newFakeCartStore())

		rec := httptest.NewRecorder()
		handler.HandleAdd(rec, authedRequest(http.MethodPost, "/cart/items", `{"quantity":1}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unauthenticated request", func(t *testing.T) {
		handler := newTestHandler(newFakeCartStore())

		req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"prod-1","quantity":1}`))
		rec := httptest.NewRecorder()
		handler.HandleAdd(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandler_HandleRemove(t *testing.T) {
	widget := domain.Product{ID: "prod-1", Title: "Widget"}

	newRemoveRequest := func(productID string) *http.Request {
		req := authedRequest(http.MethodDelete, "/cart/items/"+productID, "")
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("productId", productID)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	t.Run("removes an item and returns the cart", func(t *testing.T) {
		store := newFakeCartStore(widget)
		store.items["prod-1"] = 2
		handler := newTestHandler(store)

		rec := httptest.NewRecorder()
		handler.HandleRemove(rec, newRemoveRequest("prod-1"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeLines(t, rec))
	})

	t.Run("missing item returns 404", func(t *testing.T) {
		handler := newTestHandler(newFakeCartStore(widget))

		rec := httptest.NewRecorder()
		handler.HandleRemove(rec, newRemoveRequest("prod-1"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_HandleList(t *testing.T) {
	t.Run("empty cart is an empty array", func(t *testing.T) {
		handler := newTestHandler(newFakeCartStore())

		rec := httptest.NewRecorder()
		handler.HandleList(rec, authedRequest(http.MethodGet, "/cart", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})
}
