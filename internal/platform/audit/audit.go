// Package audit persists the per-request access trail produced by
// middleware.Audit into the tenant's audit_log table.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/middleware"
)

// Record is one stored audit_log row.
type Record struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	RequestID  *string    `db:"request_id" json:"request_id,omitempty"`
	UserID     *string    `db:"user_id" json:"user_id,omitempty"`
	StaffID    *uuid.UUID `db:"staff_id" json:"staff_id,omitempty"`
	UserRoles  []string   `db:"user_roles" json:"user_roles"`
	Resource   string     `db:"resource" json:"resource"`
	ResourceID *uuid.UUID `db:"resource_id" json:"resource_id,omitempty"`
	PatientID  *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Action     string     `db:"action" json:"action"`
	Method     string     `db:"method" json:"method"`
	Path       string     `db:"path" json:"path"`
	StatusCode int        `db:"status_code" json:"status_code"`
	IPAddress  *string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  *string    `db:"user_agent" json:"user_agent,omitempty"`
	RecordedAt time.Time  `db:"recorded_at" json:"recorded_at"`
}

// Filter narrows a Search. Zero fields match everything; From and To bound
// recorded_at as [From, To).
type Filter struct {
	PatientID *uuid.UUID
	StaffID   *uuid.UUID
	Resource  string
	Action    string
	From      time.Time
	To        time.Time
}

const cols = `id, request_id, user_id, staff_id, user_roles, resource, resource_id, patient_id,
	action, method, path, status_code, ip_address, user_agent, recorded_at`

// Store writes and queries audit_log through the request's tenant connection.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) conn(ctx context.Context) db.Querier {
	return db.From(ctx, s.pool)
}

// RecordAccess implements middleware.AuditRecorder. Requests that never
// reached a tenant schema are not stored.
func (s *Store) RecordAccess(ctx context.Context, e middleware.AuditEntry) error {
	if db.ConnFromContext(ctx) == nil {
		return nil
	}
	r := FromEntry(e)
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO audit_log (`+cols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.RequestID, r.UserID, r.StaffID, r.UserRoles, r.Resource, r.ResourceID, r.PatientID,
		r.Action, r.Method, r.Path, r.StatusCode, r.IPAddress, r.UserAgent, r.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert audit_log: %w", err)
	}
	return nil
}

// FromEntry converts a middleware entry to a row, dropping ids that are not
// UUIDs.
func FromEntry(e middleware.AuditEntry) *Record {
	roles := e.UserRoles
	if roles == nil {
		roles = []string{}
	}
	recorded := e.Timestamp
	if recorded.IsZero() {
		recorded = time.Now().UTC()
	}
	return &Record{
		ID:         uuid.New(),
		RequestID:  optString(e.RequestID),
		UserID:     optString(e.UserID),
		StaffID:    optUUID(e.StaffID),
		UserRoles:  roles,
		Resource:   e.Resource,
		ResourceID: optUUID(e.ResourceID),
		PatientID:  optUUID(e.PatientID),
		Action:     e.Action,
		Method:     e.Method,
		Path:       e.Path,
		StatusCode: e.StatusCode,
		IPAddress:  optString(e.IPAddress),
		UserAgent:  optString(e.UserAgent),
		RecordedAt: recorded,
	}
}

func buildQuery(f Filter) *db.Query {
	q := db.NewQuery("audit_log", cols).OrderBy("recorded_at DESC, id")
	if f.PatientID != nil {
		q.Eq("patient_id", *f.PatientID)
	}
	if f.StaffID != nil {
		q.Eq("staff_id", *f.StaffID)
	}
	if f.Resource != "" {
		q.Eq("resource", f.Resource)
	}
	if f.Action != "" {
		q.Eq("action", f.Action)
	}
	if !f.From.IsZero() {
		q.Where("recorded_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q.Where("recorded_at < ?", f.To)
	}
	return q
}

// Search returns matching rows newest first with the unpaged total.
func (s *Store) Search(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	q := buildQuery(f)
	var total int
	if err := s.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.conn(ctx).Query(ctx, q.ListSQL(), q.ListArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

// Purge deletes rows recorded before cutoff.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM audit_log WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.RequestID, &r.UserID, &r.StaffID, &r.UserRoles, &r.Resource,
		&r.ResourceID, &r.PatientID, &r.Action, &r.Method, &r.Path, &r.StatusCode,
		&r.IPAddress, &r.UserAgent, &r.RecordedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optUUID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
