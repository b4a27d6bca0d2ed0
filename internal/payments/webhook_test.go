package payments

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tanmaydg/bazario/internal/domain"
	"github.com/tanmaydg/bazario/internal/orders"
)

type fakePaymentStore struct {
	markPaidFn func(ctx context.Context, orderID string) (*domain.Order, error)
	calls      []string
}

func (f *fakePaymentStore) MarkPaid(ctx context.Context, orderID string) (*domain.Order, error) {
	f.calls = append(f.calls, orderID)
	if f.markPaidFn != nil {
		return f.markPaidFn(ctx, orderID)
	}
	return &domain.Order{ID: orderID, IsPaid: true}, nil
}

const secret = "whsec_test"

const completedEvent = `{
	"type": "checkout.session.completed",
	"data": {"object": {"id": "cs_1", "metadata": {"order_id": "order-1"}}}
}`

func newWebhookRequest(body string, signed bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment-gateway", strings.NewReader(body))
	if signed {
		// Literal header name: it is part of the wire contract with the
		// gateway, not an internal detail.
		req.Header.Set("Bazario-Signature", Sign([]byte(body), []byte(secret), time.Now()))
	}
	return req
}

func newTestWebhook(store PaymentStore) *WebhookHandler {
	return NewWebhookHandler(store, secret, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWebhookHandler(t *testing.T) {
	t.Run("marks the order paid on checkout completion", func(t *testing.T) {
		store := &fakePaymentStore{}
		handler := newTestWebhook(store)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newWebhookRequest(completedEvent, true))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(store.calls) != 1 || store.calls[0] != "order-1" {
			t.Errorf("expected MarkPaid(order-1), got %v", store.calls)
		}
	})

	t.Run("rejects an unsigned payload", func(t *testing.T) {
		store := &fakePaymentStore{}
		handler := newTestWebhook(store)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newWebhookRequest(completedEvent, false))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
		if len(store.calls) != 0 {
			t.Error("store must not be touched on a bad signature")
		}
	})

	t.Run("rejects a forged signature", func(t *testing.T) {
		store := &fakePaymentStore{}
		handler := newTestWebhook(store)

		req := newWebhookRequest(completedEvent, false)
		req.Header.Set(SignatureHeader, Sign([]byte(completedEvent), []byte("whsec_wrong"), time.Now()))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("acknowledges unrelated event types", func(t *testing.T) {
		store := &fakePaymentStore{}
		handler := newTestWebhook(store)

		body := strings.Replace(completedEvent, "checkout.session.completed", "invoice.created", 1)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newWebhookRequest(body, true))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if len(store.calls) != 0 {
			t.Error("unrelated events must not touch the store")
		}
	})

	t.Run("rejects a completion without an order id", func(t *testing.T) {
		handler := newTestWebhook(&fakePaymentStore{})

		body := strings.Replace(completedEvent, `"order-1"`, `""`, 1)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newWebhookRequest(body, true))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("unknown order returns 404", func(t *testing.T) {
		store := &fakePaymentStore{
			markPaidFn: func(context.Context, string) (*domain.Order, error) {
				return nil, orders.ErrOrderNotFound
			},
		}
		handler := newTestWebhook(store)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newWebhookRequest(completedEvent, true))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("repeated deliveries stay 200", func(t *testing.T) {
		store := &fakePaymentStore{}
		handler := newTestWebhook(store)

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, newWebhookRequest(completedEvent, true))
			if rec.Code != http.StatusOK {
				t.Fatalf("delivery %d: expected status 200, got %d", i, rec.Code)
			}
		}
	})
}
