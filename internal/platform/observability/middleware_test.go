package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/servihogar/api/internal/platform/auth"
)

func newObservedRouter(t *testing.T, status int) (*chi.Mux, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(logger))
	router.Use(RequestLoggerMiddleware("servihogar-prod"))
	router.Get("/api/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	return router, logs
}

func completionEntry(t *testing.T, logs *observer.ObservedLogs) observer.LoggedEntry {
	t.Helper()

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	return entries[0]
}

func TestRequestLoggerUsesRoutePattern(t *testing.T) {
	router, logs := newObservedRouter(t, http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/so_7b1", nil)
	identity := &auth.Identity{UID: "stf_carmen", Roles: []string{auth.RoleSecretary}}
	req = req.WithContext(auth.WithIdentity(req.Context(), identity))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	entry := completionEntry(t, logs)
	fields := entry.ContextMap()
	if got := fields["route"]; got != "/api/orders/{orderID}" {
		t.Fatalf("expected route pattern in log, got %v", got)
	}
	if got := fields["user_id"]; got != "stf_carmen" {
		t.Fatalf("expected staff uid in log, got %v", got)
	}
	if got := fields["status"]; got != int64(http.StatusOK) {
		t.Fatalf("expected status 200, got %v", got)
	}
}

func TestRequestLoggerEscalatesServerErrors(t *testing.T) {
	router, logs := newObservedRouter(t, http.StatusInternalServerError)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/orders/so_7b1", nil))

	entry := completionEntry(t, logs)
	if entry.Level != zap.ErrorLevel {
		t.Fatalf("expected error level for 500, got %s", entry.Level)
	}
}

func TestTraceMiddlewareJoinsCloudTrace(t *testing.T) {
	const traceID = "105445aa7843bc8bf206b12000100000"

	handler := TraceMiddleware("servihogar-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.Header.Set("X-Cloud-Trace-Context", traceID+"/1;o=1")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	echoed := rr.Header().Get("X-Cloud-Trace-Context")
	if !strings.HasPrefix(echoed, traceID+"/") {
		t.Fatalf("expected response to echo trace %s, got %s", traceID, echoed)
	}
	if !strings.HasSuffix(echoed, ";o=1") {
		t.Fatalf("expected sampled flag preserved, got %s", echoed)
	}
}

func TestDecodeSpanIDAcceptsDecimal(t *testing.T) {
	spanID, ok := decodeSpanID("12345")
	if !ok {
		t.Fatal("expected decimal span id to parse")
	}
	if !spanID.IsValid() {
		t.Fatal("expected a valid span id")
	}
}

func TestSanitizeUserIDStripsControlCharacters(t *testing.T) {
	got := SanitizeUserID("stf_carmen\x00\x1b[31m")
	if strings.ContainsRune(got, '\x00') || strings.ContainsRune(got, '\x1b') {
		t.Fatalf("control characters survived sanitisation: %q", got)
	}
	if !strings.HasPrefix(got, "stf_carmen") {
		t.Fatalf("expected uid preserved, got %q", got)
	}
}
