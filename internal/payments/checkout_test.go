package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckoutClient_CreateCheckoutSession(t *testing.T) {
	t.Run("posts the session and returns the redirect url", func(t *testing.T) {
		gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/checkout/sessions" {
				t.Errorf("expected /v1/checkout/sessions, got %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer sk_test" {
				t.Errorf("unexpected authorization header: %s", r.Header.Get("Authorization"))
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("failed to parse form: %v", err)
			}
			if got := r.PostForm.Get("metadata[order_id]"); got != "order-1" {
				t.Errorf("expected order id in metadata, got %q", got)
			}
			if got := r.PostForm.Get("line_items[0][price_data][unit_amount]"); got != "2100" {
				t.Errorf("expected unit_amount 2100, got %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://pay.example/cs_1"}`))
		}))
		defer gateway.Close()

		client := NewCheckoutClient(gateway.URL, "sk_test", "http://app/success", "http://app/cancel", gateway.Client())

		url, err := client.CreateCheckoutSession(context.Background(), "order-1", "Widget", 2100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if url != "https://pay.example/cs_1" {
			t.Errorf("unexpected url: %s", url)
		}
	})

	t.Run("gateway errors are surfaced", func(t *testing.T) {
		gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer gateway.Close()

		client := NewCheckoutClient(gateway.URL, "sk_bad", "http://app/success", "http://app/cancel", gateway.Client())

		if _, err := client.CreateCheckoutSession(context.Background(), "order-1", "Widget", 2100); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("a session without a url is an error", func(t *testing.T) {
		gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"id":"cs_2"}`))
		}))
		defer gateway.Close()

		client := NewCheckoutClient(gateway.URL, "sk_test", "http://app/success", "http://app/cancel", gateway.Client())

		if _, err := client.CreateCheckoutSession(context.Background(), "order-1", "Widget", 2100); err == nil {
			t.Fatal("expected an error")
		}
	})
}
