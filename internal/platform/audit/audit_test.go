package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/hms/internal/platform/middleware"
)

func TestFromEntry(t *testing.T) {
	patient := uuid.New()
	at := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	r := FromEntry(middleware.AuditEntry{
		UserID:     "staff-login",
		StaffID:    "not-a-uuid",
		Resource:   "patients",
		ResourceID: patient.String(),
		PatientID:  patient.String(),
		Action:     "read",
		Method:     http.MethodGet,
		Path:       "/api/v1/patients/" + patient.String(),
		Timestamp:  at,
		StatusCode: http.StatusOK,
	})

	assert.NotEqual(t, uuid.Nil, r.ID)
	require.NotNil(t, r.UserID)
	assert.Equal(t, "staff-login", *r.UserID)
	assert.Nil(t, r.StaffID, "non-UUID staff ids are dropped")
	assert.Nil(t, r.RequestID)
	require.NotNil(t, r.PatientID)
	assert.Equal(t, patient, *r.PatientID)
	assert.Equal(t, []string{}, r.UserRoles)
	assert.Equal(t, at, r.RecordedAt)
}

func TestBuildQuery(t *testing.T) {
	pid := uuid.New()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q := buildQuery(Filter{PatientID: &pid, Action: "update", From: from})

	assert.Equal(t, "SELECT COUNT(*) FROM audit_log WHERE patient_id = $1 AND action = $2 AND recorded_at >= $3", q.CountSQL())
	assert.Equal(t, []interface{}{pid, "update", from}, q.Args())
	assert.Contains(t, q.ListSQL(), "ORDER BY recorded_at DESC, id LIMIT $4 OFFSET $5")

	assert.Equal(t, "SELECT COUNT(*) FROM audit_log", buildQuery(Filter{}).CountSQL())
}

func TestRecordAccess_SkipsWithoutTenant(t *testing.T) {
	s := NewStore(nil)
	assert.NoError(t, s.RecordAccess(context.Background(), middleware.AuditEntry{Action: "read"}))
}

type fakeSearcher struct {
	got   Filter
	items []*Record
	err   error
}

func (f *fakeSearcher) Search(_ context.Context, filter Filter, limit, offset int) ([]*Record, int, error) {
	f.got = filter
	return f.items, len(f.items), f.err
}

func searchContext(target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestHandler_SearchFilters(t *testing.T) {
	pid := uuid.New()
	fs := &fakeSearcher{}
	h := NewHandler(fs)

	c, rec := searchContext("/audit-log?patient_id=" + pid.String() + "&resource=/patients/&from=2026-03-01&to=2026-03-10")
	require.NoError(t, h.Search(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)

	require.NotNil(t, fs.got.PatientID)
	assert.Equal(t, pid, *fs.got.PatientID)
	assert.Equal(t, "patients", fs.got.Resource)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), fs.got.From)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), fs.got.To, "to is inclusive")
}

func TestHandler_SearchRejectsBadParams(t *testing.T) {
	h := NewHandler(&fakeSearcher{})
	for _, target := range []string{
		"/audit-log?patient_id=abc",
		"/audit-log?staff_id=42",
		"/audit-log?action=export",
		"/audit-log?from=10-03-2026",
		"/audit-log?from=2026-03-10&to=2026-03-01",
	} {
		c, _ := searchContext(target)
		assert.Equal(t, http.StatusBadRequest, httpCode(h.Search(c)), target)
	}
}

func TestHandler_SearchError(t *testing.T) {
	h := NewHandler(&fakeSearcher{err: errors.New("db down")})
	c, _ := searchContext("/audit-log")
	assert.Equal(t, http.StatusInternalServerError, httpCode(h.Search(c)))
}

func TestHandler_SearchCSV(t *testing.T) {
	staff := uuid.New()
	ip := "10.0.0.7"
	fs := &fakeSearcher{items: []*Record{{
		ID:         uuid.New(),
		StaffID:    &staff,
		UserRoles:  []string{"doctor", "nurse"},
		Resource:   "revisits",
		Action:     "create",
		Method:     http.MethodPost,
		Path:       "/api/v1/revisits",
		StatusCode: http.StatusCreated,
		IPAddress:  &ip,
		RecordedAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}}}
	h := NewHandler(fs)

	c, rec := searchContext("/audit-log?format=csv")
	require.NoError(t, h.Search(c))
	assert.Equal(t, "text/csv", rec.Header().Get(echo.HeaderContentType))

	rows, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "2026-03-10T08:00:00Z", rows[1][0])
	assert.Equal(t, staff.String(), rows[1][3])
	assert.Equal(t, "doctor;nurse", rows[1][4])
	assert.Equal(t, "201", rows[1][11])
	assert.True(t, strings.HasPrefix(rows[1][12], "10.0.0"))
}
