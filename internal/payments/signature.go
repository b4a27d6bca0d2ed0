package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignatureHeader = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature verification failed")
	ErrTimestampTooOld    = errors.New("signature timestamp outside tolerance")
)

// signatureTolerance bounds how stale a signed payload may be, limiting
// replay of captured webhook deliveries.
const signatureTolerance = 5 * time.Minute

// VerifySignature checks a gateway signature header of the form
// "t=<unix>,v1=<hex hmac>" where the MAC is HMAC-SHA256 over
// "<unix>.<body>" with the shared webhook secret.
func VerifySignature(header string, body, secret []byte, now time.Time) error {
	var timestamp string
	var signatures [][]byte

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return ErrBadSignatureHeader
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			sig, err := hex.DecodeString(v)
			if err != nil {
				return ErrBadSignatureHeader
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return ErrBadSignatureHeader
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadSignatureHeader
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrTimestampTooOld
	}

	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s.", timestamp)
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign produces a header VerifySignature accepts. Used by tests and by
// local tooling that replays webhook payloads.
func Sign(body, secret []byte, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s.", ts)
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
