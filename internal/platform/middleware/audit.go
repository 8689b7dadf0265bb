package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry records who touched which hospital record.
type AuditEntry struct {
	UserID     string
	StaffID    string
	UserRoles  []string
	TenantID   string
	Resource   string
	ResourceID string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit emits an "audit" log line for every /api/v1 request after the
// handler ran, and hands the entry to the optional recorder.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, apiPrefix) || auth.IsPublicPath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c)
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					entry.StatusCode = he.Code
				} else if entry.StatusCode < 400 {
					entry.StatusCode = http.StatusInternalServerError
				}
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(context.WithoutCancel(c.Request().Context()), entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("tenant_id", entry.TenantID).
				Str("user_id", entry.UserID).
				Str("staff_id", entry.StaffID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context) AuditEntry {
	req := c.Request()
	ctx := req.Context()
	rid, _ := c.Get("request_id").(string)
	tenant, _ := c.Get("tenant_id").(string)
	resource, id := splitResource(req.URL.Path)

	return AuditEntry{
		UserID:     auth.UserIDFromContext(ctx),
		StaffID:    auth.StaffIDFromContext(ctx),
		UserRoles:  auth.RolesFromContext(ctx),
		TenantID:   tenant,
		Resource:   resource,
		ResourceID: id,
		PatientID:  extractPatientID(c, resource, id),
		Action:     httpMethodToAction(req.Method),
		IPAddress:  c.RealIP(),
		UserAgent:  req.UserAgent(),
		Path:       req.URL.Path,
		Method:     req.Method,
		Timestamp:  time.Now().UTC(),
		RequestID:  rid,
		StatusCode: c.Response().Status,
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitResource turns /api/v1/pharmacy/billing/<id>/payment into
// ("pharmacy/billing", "<id>"). The resource is every segment before the
// first UUID.
func splitResource(path string) (resource, id string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
	var parts []string
	for _, s := range segments {
		if isUUID(s) {
			return strings.Join(parts, "/"), s
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "unknown", ""
	}
	return strings.Join(parts, "/"), ""
}

func extractPatientID(c echo.Context, resource, id string) string {
	if resource == "patients" && id != "" {
		return id
	}
	if pid := c.QueryParam("patient_id"); isUUID(pid) {
		return pid
	}
	return ""
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
