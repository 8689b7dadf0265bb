package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("ip"); !ok {
			t.Fatalf("request %d should pass within burst", i+1)
		}
	}
	ok, retry := l.allow("ip")
	if ok {
		t.Fatal("third request should be limited")
	}
	if retry < 1 {
		t.Errorf("expected retry-after >= 1, got %d", retry)
	}

	now = now.Add(time.Second)
	if ok, _ := l.allow("ip"); !ok {
		t.Error("expected a refilled token after one second")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 0.1, BurstSize: 1})
	if ok, _ := l.allow("a"); !ok {
		t.Fatal("first key should pass")
	}
	if ok, _ := l.allow("b"); !ok {
		t.Fatal("second key has its own bucket")
	}
}

func TestLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Now()
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	l.now = func() time.Time { return now }
	l.allow("old")

	now = now.Add(2 * time.Minute)
	l.allow("new")
	if _, ok := l.buckets["old"]; ok {
		t.Error("expected idle bucket to be evicted")
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	rec := httptest.NewRecorder()
	if err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("expected limit header, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec = httptest.NewRecorder()
	err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected Retry-After and X-RateLimit-Remaining headers")
	}
}

func TestRateLimit_TenantScoped(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.01, BurstSize: 1})(func(c echo.Context) error { return nil })

	for _, tenantID := range []string{"north", "south"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set("jwt_tenant_id", tenantID)
		if err := h(c); err != nil {
			t.Errorf("tenant %s should have its own bucket: %v", tenantID, err)
		}
	}
}
