package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestCheck_Healthy(t *testing.T) {
	report := Check(context.Background(), fakePinger{})
	if report.Status != "healthy" {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if report.Error != "" {
		t.Errorf("expected no error, got %q", report.Error)
	}
	if report.Pool != nil {
		t.Error("expected no pool stats for a non-pool pinger")
	}
}

func TestCheck_Unhealthy(t *testing.T) {
	report := Check(context.Background(), fakePinger{err: errors.New("connection refused")})
	if report.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %s", report.Status)
	}
	if report.Error != "connection refused" {
		t.Errorf("unexpected error text %q", report.Error)
	}
}

func TestHealthHandler_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"up", nil, http.StatusOK},
		{"down", errors.New("timeout"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := HealthHandler(fakePinger{err: tt.err})(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			var report HealthReport
			if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if report.CheckedAt.IsZero() {
				t.Error("expected checked_at to be set")
			}
		})
	}
}
