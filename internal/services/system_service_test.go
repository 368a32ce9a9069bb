package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/servihogar/api/internal/domain"
	"github.com/servihogar/api/internal/repositories"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

var _ repositories.HealthRepository = (*stubHealthRepository)(nil)

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestSystemHealthStampsGeneratedAt(t *testing.T) {
	now := time.Date(2026, time.July, 6, 16, 0, 0, 0, time.UTC)
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{report: domain.SystemHealthReport{
			Healthy: true,
			Checks:  []domain.SystemHealthCheck{{Name: "firestore", Healthy: true, Detail: "ok"}},
		}},
		Clock: fixedClock(now),
		Build: BuildInfo{Version: "1.4.0", Environment: "test"},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("GeneratedAt = %s, want %s", report.GeneratedAt, now)
	}
	if !report.Healthy || len(report.Checks) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	build := svc.Build()
	if build.Version != "1.4.0" || build.StartedAt.IsZero() {
		t.Fatalf("unexpected build info: %+v", build)
	}
}
