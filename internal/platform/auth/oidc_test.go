package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

const (
	schedulerAudience = "https://api.servihogar.example/internal"
	schedulerIssuer   = "https://accounts.google.com"
)

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

type recordingMetrics struct {
	mu      sync.Mutex
	records []verificationRecord
}

type verificationRecord struct {
	kind    string
	success bool
	reason  string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, verificationRecord{kind: kind, success: success, reason: reason})
}

func (m *recordingMetrics) last(t *testing.T) verificationRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		t.Fatal("no verification recorded")
	}
	return m.records[len(m.records)-1]
}

// schedulerTokenFixture stands in for Google's token infrastructure: a JWKS
// endpoint serving one signing key and tokens minted with it.
type schedulerTokenFixture struct {
	key       *rsa.PrivateKey
	validator *OIDCValidator
	metrics   *recordingMetrics
	now       time.Time
	requests  func() int
}

func newSchedulerTokenFixture(t *testing.T) *schedulerTokenFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "scheduler-key",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	var mu sync.Mutex
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=600")
		if err := json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}); err != nil {
			t.Fatalf("encode jwks: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	originalTimeFunc := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = originalTimeFunc })

	metrics := &recordingMetrics{}
	validator := NewOIDCValidator(
		NewJWKSCache(server.URL,
			WithJWKSLogger(noopLogger{}),
			WithJWKSClock(func() time.Time { return now }),
		),
		WithOIDCLogger(noopLogger{}),
		WithOIDCMetrics(metrics),
		WithOIDCClock(func() time.Time { return now }),
	)

	return &schedulerTokenFixture{
		key:       key,
		validator: validator,
		metrics:   metrics,
		now:       now,
		requests: func() int {
			mu.Lock()
			defer mu.Unlock()
			return requests
		},
	}
}

func (fx *schedulerTokenFixture) token(t *testing.T, mutate ...func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"aud":   []string{schedulerAudience},
		"iss":   schedulerIssuer,
		"sub":   "108123456789",
		"email": "scheduler-invoker@servihogar-prod.iam.gserviceaccount.com",
		"exp":   float64(fx.now.Add(time.Hour).Unix()),
		"iat":   float64(fx.now.Unix()),
	}
	for _, fn := range mutate {
		fn(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "scheduler-key"
	signed, err := token.SignedString(fx.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSCacheFetchesOnce(t *testing.T) {
	fx := newSchedulerTokenFixture(t)

	ctx := context.Background()
	got, err := fx.validator.cache.Key(ctx, "scheduler-key")
	if err != nil {
		t.Fatalf("cache.Key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}

	if _, err := fx.validator.cache.Key(ctx, "scheduler-key"); err != nil {
		t.Fatalf("cache.Key second call: %v", err)
	}
	if fx.requests() != 1 {
		t.Fatalf("expected single JWKS fetch, got %d", fx.requests())
	}
}

func TestRequireOIDC_SchedulerTokenAccepted(t *testing.T) {
	fx := newSchedulerTokenFixture(t)
	middleware := fx.validator.RequireOIDC(schedulerAudience, []string{schedulerIssuer})

	req := httptest.NewRequest(http.MethodPost, "/internal/outbox:drain", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token(t))

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected service identity in context")
		}
		if identity.Email != "scheduler-invoker@servihogar-prod.iam.gserviceaccount.com" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if record := fx.metrics.last(t); !record.success || record.reason != "ok" {
		t.Fatalf("unexpected metric record: %+v", record)
	}
}

func TestRequireOIDC_AudienceMismatch(t *testing.T) {
	fx := newSchedulerTokenFixture(t)
	middleware := fx.validator.RequireOIDC("https://other-service.example", []string{schedulerIssuer})

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance:run", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token(t))

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if record := fx.metrics.last(t); record.reason != "audience_mismatch" {
		t.Fatalf("expected audience_mismatch metric, got %+v", record)
	}
}

func TestRequireOIDC_IssuerNotAllowed(t *testing.T) {
	fx := newSchedulerTokenFixture(t)
	middleware := fx.validator.RequireOIDC(schedulerAudience, []string{schedulerIssuer})

	req := httptest.NewRequest(http.MethodPost, "/internal/purge:run", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token(t, func(claims jwt.MapClaims) {
		claims["iss"] = "https://evil.example"
	}))

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if record := fx.metrics.last(t); record.reason != "issuer_mismatch" {
		t.Fatalf("expected issuer_mismatch metric, got %+v", record)
	}
}

func TestRequireOIDC_AcceptsIAPAssertionHeader(t *testing.T) {
	fx := newSchedulerTokenFixture(t)
	iapAudience := "/projects/123/global/backendServices/456"
	middleware := fx.validator.RequireOIDC(iapAudience, []string{"https://cloud.google.com/iap"})

	req := httptest.NewRequest(http.MethodGet, "/internal/calendars/cal_norte/events", nil)
	req.Header.Set("X-Goog-Iap-Jwt-Assertion", fx.token(t, func(claims jwt.MapClaims) {
		claims["aud"] = []string{iapAudience}
		claims["iss"] = "https://cloud.google.com/iap"
	}))

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
}

func TestRequireOIDC_JWKSUnavailableIs503(t *testing.T) {
	fx := newSchedulerTokenFixture(t)
	token := fx.token(t)

	// Point the cache at a dead endpoint before the first fetch.
	fx.validator.cache.url = "http://127.0.0.1:1/jwks"
	middleware := fx.validator.RequireOIDC(schedulerAudience, []string{schedulerIssuer})

	req := httptest.NewRequest(http.MethodPost, "/internal/outbox:drain", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if record := fx.metrics.last(t); record.reason != "jwks_unavailable" {
		t.Fatalf("expected jwks_unavailable metric, got %+v", record)
	}
}
