package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/dates"
	"github.com/hms/hms/pkg/pagination"
)

// Searcher is the read side of Store.
type Searcher interface {
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error)
}

type Handler struct {
	store Searcher
}

func NewHandler(store Searcher) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/audit-log", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.Search)
}

var csvHeader = []string{
	"recorded_at", "request_id", "user_id", "staff_id", "roles", "action", "method",
	"path", "resource", "resource_id", "patient_id", "status", "ip_address",
}

// Search lists audit rows. from/to are inclusive dates; format=csv streams
// the current page as CSV.
func (h *Handler) Search(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pg := pagination.FromContext(c)
	items, total, err := h.store.Search(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Record{}
	}

	if c.QueryParam("format") == "csv" {
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="audit-log.csv"`)
		c.Response().WriteHeader(http.StatusOK)
		return writeCSV(c.Response(), items)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func parseFilter(c echo.Context) (Filter, error) {
	var f Filter
	for _, p := range []struct {
		name string
		dst  **uuid.UUID
	}{{"patient_id", &f.PatientID}, {"staff_id", &f.StaffID}} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid %s", p.name)
		}
		*p.dst = &id
	}

	f.Resource = strings.Trim(c.QueryParam("resource"), "/")
	f.Action = c.QueryParam("action")
	switch f.Action {
	case "", "read", "create", "update", "delete":
	default:
		return Filter{}, fmt.Errorf("action must be one of read, create, update, delete")
	}

	if v := c.QueryParam("from"); v != "" {
		d, err := dates.Parse(v)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid from date: %s", v)
		}
		f.From = d.Time
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := dates.Parse(v)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid to date: %s", v)
		}
		f.To = d.AddDays(1).Time
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return Filter{}, fmt.Errorf("to must not be before from")
	}
	return f, nil
}

func writeCSV(w io.Writer, items []*Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range items {
		if err := cw.Write([]string{
			r.RecordedAt.UTC().Format(time.RFC3339),
			deref(r.RequestID),
			deref(r.UserID),
			uuidString(r.StaffID),
			strings.Join(r.UserRoles, ";"),
			r.Action,
			r.Method,
			r.Path,
			r.Resource,
			uuidString(r.ResourceID),
			uuidString(r.PatientID),
			strconv.Itoa(r.StatusCode),
			deref(r.IPAddress),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
