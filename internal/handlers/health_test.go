package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/services"
)

type stubSystemService struct {
	healthFn func(context.Context) (services.SystemHealthReport, error)
	build    services.BuildInfo
}

func (s *stubSystemService) Health(ctx context.Context) (services.SystemHealthReport, error) {
	if s.healthFn != nil {
		return s.healthFn(ctx)
	}
	return services.SystemHealthReport{Healthy: true}, nil
}

func (s *stubSystemService) Build() services.BuildInfo { return s.build }

func TestHealthzReportsBuildMetadata(t *testing.T) {
	now := time.Date(2026, 7, 6, 12, 0, 0, 0, time.UTC)
	system := &stubSystemService{
		build: services.BuildInfo{
			Version:     "1.4.0",
			Environment: "production",
			StartedAt:   now.Add(-2 * time.Hour),
		},
	}

	handler := NewHealthHandlers(system, WithHealthClock(func() time.Time { return now }))
	rr := httptest.NewRecorder()
	handler.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "1.4.0" {
		t.Fatalf("unexpected payload %#v", resp)
	}
	if resp["uptime"] != "2h0m0s" {
		t.Fatalf("expected uptime 2h0m0s, got %v", resp["uptime"])
	}
}

func TestReadyzHealthy(t *testing.T) {
	system := &stubSystemService{
		healthFn: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Healthy:     true,
				GeneratedAt: time.Date(2026, 7, 6, 12, 0, 0, 0, time.UTC),
				Checks: []domain.SystemHealthCheck{
					{Name: "firestore", Healthy: true, DurationMS: 12},
				},
			}, nil
		},
	}

	handler := NewHealthHandlers(system)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestReadyzUnhealthyDependency(t *testing.T) {
	system := &stubSystemService{
		healthFn: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Healthy: false,
				Checks: []domain.SystemHealthCheck{
					{Name: "firestore", Healthy: false, Detail: "deadline exceeded"},
				},
			}, nil
		},
	}

	handler := NewHealthHandlers(system)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["healthy"] != false {
		t.Fatalf("expected healthy=false, got %#v", resp)
	}
}

func TestReadyzCollectionError(t *testing.T) {
	system := &stubSystemService{
		healthFn: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{}, errors.New("firestore unavailable")
		},
	}

	handler := NewHealthHandlers(system)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestReadyzWithoutSystemService(t *testing.T) {
	handler := NewHealthHandlers(nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
