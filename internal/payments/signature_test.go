package payments

import (
	"errors"
	"testing"
	"time"
)

func TestVerifySignature(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"type":"checkout.session.completed"}`)
	now := time.Unix(1756700000, 0)

	t.Run("accepts a freshly signed payload", func(t *testing.T) {
		header := Sign(body, secret, now)
		if err := VerifySignature(header, body, secret, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("accepts within the tolerance window", func(t *testing.T) {
		header := Sign(body, secret, now)
		if err := VerifySignature(header, body, secret, now.Add(4*time.Minute)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects a stale timestamp", func(t *testing.T) {
		header := Sign(body, secret, now)
		err := VerifySignature(header, body, secret, now.Add(6*time.Minute))
		if !errors.Is(err, ErrTimestampTooOld) {
			t.Fatalf("expected ErrTimestampTooOld, got %v", err)
		}
	})

	t.Run("rejects a tampered body", func(t *testing.T) {
		header := Sign(body, secret, now)
		err := VerifySignature(header, []byte(`{"type":"something.else"}`), secret, now)
		if !errors.Is(err, ErrSignatureMismatch) {
			t.Fatalf("expected ErrSignatureMismatch, got %v", err)
		}
	})

	t.Run("rejects the wrong secret", func(t *testing.T) {
		header := Sign(body, []byte("whsec_other"), now)
		err := VerifySignature(header, body, secret, now)
		if !errors.Is(err, ErrSignatureMismatch) {
			t.Fatalf("expected ErrSignatureMismatch, got %v", err)
		}
	})

	t.Run("rejects malformed headers", func(t *testing.T) {
		for _, header := range []string{"", "t=123", "v1=deadbeef", "t=abc,v1=deadbeef", "t=123,v1=zz", "garbage"} {
			err := VerifySignature(header, body, secret, now)
			if !errors.Is(err, ErrBadSignatureHeader) {
				t.Errorf("header %q: expected ErrBadSignatureHeader, got %v", header, err)
			}
		}
	})

	t.Run("accepts when any v1 candidate matches", func(t *testing.T) {
		header := Sign(body, secret, now) + ",v1=00"
		if err := VerifySignature(header, body, secret, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
