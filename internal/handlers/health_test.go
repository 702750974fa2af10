package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/services"
)

type stubSystemService struct {
	reportFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.reportFn(ctx)
}

func TestHealthzReportsBuildMetadata(t *testing.T) {
	started := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{
			Version:     "1.4.2",
			CommitSHA:   "abc1234",
			Environment: "production",
			StartedAt:   started,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %v", body["status"])
	}
	if body["version"] != "1.4.2" || body["commitSha"] != "abc1234" {
		t.Fatalf("unexpected build metadata: %v", body)
	}
	if body["uptime"] != "1h30m0s" {
		t.Fatalf("unexpected uptime: %v", body["uptime"])
	}
}

func TestReadyzHealthy(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{
		reportFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{
					"database": {Status: domain.HealthStatusOK, Latency: 4 * time.Millisecond},
				},
				GeneratedAt: time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC),
			}, nil
		},
	}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp readyzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %q", resp.Status)
	}
	check, ok := resp.Checks["database"]
	if !ok {
		t.Fatalf("expected database check, got %v", resp.Checks)
	}
	if check.LatencyMS != 4 {
		t.Fatalf("expected latency 4ms, got %d", check.LatencyMS)
	}
}

func TestReadyzDegradedAnswers503(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{
		reportFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"database": {Status: domain.HealthStatusOK},
					"pubsub":   {Status: domain.HealthStatusDegraded, Error: "publish deadline exceeded"},
				},
			}, nil
		},
	}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var resp readyzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Details) != 1 || resp.Details[0] != "pubsub: publish deadline exceeded" {
		t.Fatalf("unexpected details: %v", resp.Details)
	}
}

func TestReadyzReportFailure(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{
		reportFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, errors.New("registry closed")
		},
	}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestReadyzWithoutSystemService(t *testing.T) {
	h := NewHealthHandlers()
	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}
