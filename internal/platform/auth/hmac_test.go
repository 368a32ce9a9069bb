package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mapSecretProvider map[string]string

func (m mapSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	if secret, ok := m[name]; ok {
		return secret, nil
	}
	return "", fmt.Errorf("secret %s not found", name)
}

type signedBooking struct {
	validator *HMACValidator
	secret    string
	now       time.Time
}

func newSignedBooking(t *testing.T, secretName, secretValue string) *signedBooking {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	validator := NewHMACValidator(mapSecretProvider{secretName: secretValue}, NewInMemoryNonceStore(),
		WithHMACLogger(noopLogger{}),
		WithHMACClock(func() time.Time { return now }),
	)
	return &signedBooking{validator: validator, secret: secretValue, now: now}
}

// request builds a booking submission signed the way the website form does.
func (b *signedBooking) request(body []byte, timestamp, nonce string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/public/booking", bytes.NewReader(body))
	signature := computeHMAC([]byte(b.secret), canonicalRequest(req, body, timestamp, nonce))
	req.Header.Set(defaultSignatureHeader, base64.StdEncoding.EncodeToString(signature))
	req.Header.Set(defaultTimestampHeader, timestamp)
	req.Header.Set(defaultNonceHeader, nonce)
	return req
}

func TestRequireHMAC_Success(t *testing.T) {
	b := newSignedBooking(t, "public_form", "super-secret")

	body := []byte(`{"customerName":"Ana García","applianceType":"Refrigerador"}`)
	req := b.request(body, b.now.Format(time.RFC3339), "nonce-123")

	rr := httptest.NewRecorder()
	b.validator.RequireHMAC("public_form")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireHMAC_HexSignatureAccepted(t *testing.T) {
	b := newSignedBooking(t, "public_form_legacy", "legacy-secret")

	body := []byte(`{"customerName":"Luis"}`)
	timestamp := b.now.Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, "/public/booking", bytes.NewReader(body))
	signature := computeHMAC([]byte(b.secret), canonicalRequest(req, body, timestamp, "nonce-hex"))
	req.Header.Set(defaultSignatureHeader, hex.EncodeToString(signature))
	req.Header.Set(defaultTimestampHeader, timestamp)
	req.Header.Set(defaultNonceHeader, "nonce-hex")

	rr := httptest.NewRecorder()
	b.validator.RequireHMAC("public_form_legacy")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected hex-signed request to pass, got %d", rr.Code)
	}
}

func TestRequireHMAC_ReplayRejected(t *testing.T) {
	b := newSignedBooking(t, "public_form", "another-secret")

	body := []byte(`{"customerName":"Luis"}`)
	timestamp := b.now.Format(time.RFC3339)

	handler := b.validator.RequireHMAC("public_form")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, b.request(body, timestamp, "nonce-replay"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, b.request(body, timestamp, "nonce-replay"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay to be rejected with 401, got %d", rr.Code)
	}
}

func TestRequireHMAC_SignatureMismatch(t *testing.T) {
	b := newSignedBooking(t, "public_form", "form-secret")

	// Signed over one phone number, sent with another.
	signed := b.request([]byte(`{"customerPhone":"+525511112222"}`), b.now.Format(time.RFC3339), "nonce-tamper")
	tampered := httptest.NewRequest(http.MethodPost, "/public/booking", bytes.NewReader([]byte(`{"customerPhone":"+525599990000"}`)))
	tampered.Header = signed.Header

	rr := httptest.NewRecorder()
	b.validator.RequireHMAC("public_form")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be invoked on signature mismatch")
	})).ServeHTTP(rr, tampered)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on signature mismatch, got %d", rr.Code)
	}
}

func TestRequireHMAC_TimestampSkewRejected(t *testing.T) {
	b := newSignedBooking(t, "public_form", "form-secret")

	body := []byte(`{"issueDetail":"No enfría"}`)
	stale := b.now.Add(-10 * time.Minute).Format(time.RFC3339)

	rr := httptest.NewRecorder()
	b.validator.RequireHMAC("public_form")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called when timestamp is skewed")
	})).ServeHTTP(rr, b.request(body, stale, "nonce-old"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on timestamp skew, got %d", rr.Code)
	}
}

func TestRequireHMAC_SecretUnavailable(t *testing.T) {
	provider := SecretProviderFunc(func(context.Context, string) (string, error) {
		return "", fmt.Errorf("secret unavailable")
	})
	validator := NewHMACValidator(provider, NewInMemoryNonceStore(), WithHMACLogger(noopLogger{}))

	req := httptest.NewRequest(http.MethodPost, "/public/booking", bytes.NewReader(nil))
	rr := httptest.NewRecorder()

	validator.RequireHMAC("missing/secret")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run when secret unavailable")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when secret unavailable, got %d", rr.Code)
	}
}
