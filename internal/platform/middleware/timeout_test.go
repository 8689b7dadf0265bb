package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout_Exceeded(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil), httptest.NewRecorder())

	err := RequestTimeout(10 * time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})(c)
	if got := statusOf(t, err); got != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", got)
	}
}

func TestRequestTimeout_FastHandler(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/beds", nil), httptest.NewRecorder())

	var hasDeadline bool
	err := RequestTimeout(time.Second)(func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasDeadline {
		t.Error("expected deadline on request context")
	}
}

func TestRequestTimeout_SkipsUploads(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/pharmacy/bulk-upload", nil), httptest.NewRecorder())

	_ = RequestTimeout(time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("uploads should run without a deadline")
		}
		return nil
	})(c)
}

func TestRequestTimeout_RestoresRequest(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/beds", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	_ = RequestTimeout(time.Second)(func(c echo.Context) error { return nil })(c)

	if c.Request() != req {
		t.Fatal("expected the original request back after the handler")
	}
	if err := c.Request().Context().Err(); err != nil {
		t.Errorf("restored context should be live, got %v", err)
	}
}
