package bed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

// -- Bed --

type bedRepoPG struct {
	pool *pgxpool.Pool
}

func NewBedRepo(pool *pgxpool.Pool) BedRepository {
	return &bedRepoPG{pool: pool}
}

func (r *bedRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const bedCols = `id, bed_number, ward, room_number, bed_type, status, daily_rate,
	notes, created_at, updated_at`

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.BedNumber, &b.Ward, &b.RoomNumber, &b.BedType,
		&b.Status, &b.DailyRate, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBeds(rows pgx.Rows) ([]*Bed, error) {
	defer rows.Close()
	var out []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO beds (id, bed_number, ward, room_number, bed_type, status, daily_rate, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		b.ID, b.BedNumber, b.Ward, b.RoomNumber, b.BedType, b.Status, b.DailyRate, b.Notes,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *bedRepoPG) get(ctx context.Context, sql string, id uuid.UUID) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, sql, id))
	if db.IsNotFound(err) {
		return nil, ErrBedNotFound
	}
	return b, err
}

func (r *bedRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return r.get(ctx, `SELECT `+bedCols+` FROM beds WHERE id = $1`, id)
}

func (r *bedRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return r.get(ctx, `SELECT `+bedCols+` FROM beds WHERE id = $1 FOR UPDATE`, id)
}

func (r *bedRepoPG) Update(ctx context.Context, b *Bed) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE beds SET bed_number=$2, ward=$3, room_number=$4, bed_type=$5,
			status=$6, daily_rate=$7, notes=$8, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.BedNumber, b.Ward, b.RoomNumber, b.BedType, b.Status, b.DailyRate, b.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBedNotFound
	}
	return nil
}

func (r *bedRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE beds SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBedNotFound
	}
	return nil
}

func (r *bedRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM beds WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBedNotFound
	}
	return nil
}

func bedQuery(params map[string]string) *db.Query {
	q := db.NewQuery("beds", bedCols).OrderBy("ward, bed_number")
	for _, col := range []string{"ward", "status", "bed_type"} {
		if v, ok := params[col]; ok {
			q.Eq(col, v)
		}
	}
	return q
}

func (r *bedRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Bed, int, error) {
	q := bedQuery(params)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.ListSQL(), q.ListArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanBeds(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *bedRepoPG) ListAll(ctx context.Context, params map[string]string) ([]*Bed, error) {
	q := bedQuery(params)
	rows, err := r.conn(ctx).Query(ctx, q.SelectSQL(), q.Args()...)
	if err != nil {
		return nil, err
	}
	return scanBeds(rows)
}

// -- Allocation --

type allocationRepoPG struct {
	pool *pgxpool.Pool
}

func NewAllocationRepo(pool *pgxpool.Pool) AllocationRepository {
	return &allocationRepoPG{pool: pool}
}

func (r *allocationRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const allocCols = `a.id, a.bed_id, a.patient_id, a.admitted_at, a.discharged_at,
	a.expected_discharge, a.reason, a.status, a.allocated_by,
	TRIM(p.first_name || ' ' || p.last_name), p.uhid`

const allocFrom = ` FROM bed_allocations a JOIN patients p ON p.id = a.patient_id`

func scanAllocation(row pgx.Row) (*Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.BedID, &a.PatientID, &a.AdmittedAt, &a.DischargedAt,
		&a.ExpectedDischarge, &a.Reason, &a.Status, &a.AllocatedBy,
		&a.PatientName, &a.PatientUHID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAllocations(rows pgx.Rows) ([]*Allocation, error) {
	defer rows.Close()
	var out []*Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *allocationRepoPG) Create(ctx context.Context, a *Allocation) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = AllocationActive
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bed_allocations (id, bed_id, patient_id, admitted_at, expected_discharge,
			reason, status, allocated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.BedID, a.PatientID, a.AdmittedAt, a.ExpectedDischarge, a.Reason, a.Status, a.AllocatedBy)
	return err
}

func (r *allocationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Allocation, error) {
	a, err := scanAllocation(r.conn(ctx).QueryRow(ctx, `SELECT `+allocCols+allocFrom+` WHERE a.id = $1`, id))
	if db.IsNotFound(err) {
		return nil, ErrAllocationNotFound
	}
	return a, err
}

func (r *allocationRepoPG) getActive(ctx context.Context, col string, id uuid.UUID) (*Allocation, error) {
	a, err := scanAllocation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+allocCols+allocFrom+` WHERE a.`+col+` = $1 AND a.status = 'active'`, id))
	if db.IsNotFound(err) {
		return nil, nil
	}
	return a, err
}

func (r *allocationRepoPG) GetActiveByBed(ctx context.Context, bedID uuid.UUID) (*Allocation, error) {
	return r.getActive(ctx, "bed_id", bedID)
}

func (r *allocationRepoPG) GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Allocation, error) {
	return r.getActive(ctx, "patient_id", patientID)
}

func (r *allocationRepoPG) Close(ctx context.Context, id uuid.UUID, status string, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed_allocations SET status = $2, discharged_at = $3
		WHERE id = $1 AND status = 'active'`, id, status, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAllocationClosed
	}
	return nil
}

func (r *allocationRepoPG) ListActive(ctx context.Context) ([]*Allocation, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+allocCols+allocFrom+
		` WHERE a.status = 'active' ORDER BY a.admitted_at`)
	if err != nil {
		return nil, err
	}
	return scanAllocations(rows)
}

func (r *allocationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Allocation, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+allocCols+allocFrom+
		` WHERE a.patient_id = $1 ORDER BY a.admitted_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return scanAllocations(rows)
}
