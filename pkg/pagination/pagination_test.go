package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"/", DefaultLimit, 0},
		{"/?limit=50&offset=10", 50, 10},
		{"/?limit=500", MaxLimit, 0},
		{"/?limit=-3&offset=-7", DefaultLimit, 0},
		{"/?limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(t, tt.target)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("%s: got limit=%d offset=%d, want %d/%d", tt.target, p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if r := NewResponse([]int{1}, 45, 20, 20); !r.HasMore {
		t.Error("expected has_more on middle page")
	}
	if r := NewResponse([]int{1}, 45, 20, 40); r.HasMore {
		t.Error("expected no has_more on last page")
	}
}

func TestWindow(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Window(items, Params{Limit: 2, Offset: 1}); len(got) != 2 || got[0] != 2 {
		t.Errorf("unexpected window %v", got)
	}
	if got := Window(items, Params{Limit: 10, Offset: 3}); len(got) != 2 {
		t.Errorf("expected tail of 2, got %v", got)
	}
	if got := Window(items, Params{Limit: 10, Offset: 9}); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}
