package revisit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/dates"
)

type revisitRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &revisitRepoPG{pool: pool}
}

func (r *revisitRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const revisitCols = `id, patient_id, doctor_id, visit_date, reason, department, notes,
	follow_up_date, status, created_at`

func scanRevisit(row pgx.Row) (*Revisit, error) {
	var v Revisit
	err := row.Scan(&v.ID, &v.PatientID, &v.DoctorID, &v.VisitDate, &v.Reason, &v.Department,
		&v.Notes, &v.FollowUpDate, &v.Status, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *revisitRepoPG) Create(ctx context.Context, v *Revisit) error {
	v.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_revisits (id, patient_id, doctor_id, visit_date, reason, department,
			notes, follow_up_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		v.ID, v.PatientID, v.DoctorID, v.VisitDate, v.Reason, v.Department, v.Notes,
		v.FollowUpDate, v.Status,
	).Scan(&v.CreatedAt)
}

func (r *revisitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Revisit, error) {
	v, err := scanRevisit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+revisitCols+` FROM patient_revisits WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *revisitRepoPG) Update(ctx context.Context, v *Revisit) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_revisits SET doctor_id=$2, visit_date=$3, reason=$4, department=$5,
			notes=$6, follow_up_date=$7, status=$8
		WHERE id = $1`,
		v.ID, v.DoctorID, v.VisitDate, v.Reason, v.Department, v.Notes, v.FollowUpDate, v.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *revisitRepoPG) Complete(ctx context.Context, id uuid.UUID, notes *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_revisits SET status = 'completed',
			notes = CASE WHEN $2::text IS NULL THEN notes
			             WHEN notes IS NULL OR notes = '' THEN $2
			             ELSE notes || E'\n' || $2 END
		WHERE id = $1 AND status = 'scheduled'`, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status string
	err = r.conn(ctx).QueryRow(ctx, `SELECT status FROM patient_revisits WHERE id = $1`, id).Scan(&status)
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotScheduled
}

func (r *revisitRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Revisit, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Revisit
	for rows.Next() {
		v, err := scanRevisit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *revisitRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Revisit, int, error) {
	q := db.NewQuery("patient_revisits", revisitCols).
		Eq("patient_id", patientID).
		OrderBy("visit_date DESC, created_at DESC")
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.list(ctx, q.ListSQL(), q.ListArgs(limit, offset)...)
	return items, total, err
}

func (r *revisitRepoPG) ListByVisitDate(ctx context.Context, day dates.Date) ([]*Revisit, error) {
	return r.list(ctx, `SELECT `+revisitCols+` FROM patient_revisits
		WHERE visit_date = $1 ORDER BY created_at`, day)
}

func (r *revisitRepoPG) ListScheduledDue(ctx context.Context, from, to dates.Date) ([]*Revisit, error) {
	return r.list(ctx, `SELECT `+revisitCols+` FROM patient_revisits
		WHERE status = 'scheduled' AND follow_up_date BETWEEN $1 AND $2
		ORDER BY follow_up_date, created_at`, from, to)
}

func (r *revisitRepoPG) ListVisitRange(ctx context.Context, from, to dates.Date) ([]*Revisit, error) {
	return r.list(ctx, `SELECT `+revisitCols+` FROM patient_revisits
		WHERE visit_date BETWEEN $1 AND $2 ORDER BY visit_date`, from, to)
}

func (r *revisitRepoPG) MarkMissed(ctx context.Context, before dates.Date) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_revisits SET status = 'missed'
		WHERE status = 'scheduled' AND follow_up_date < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *revisitRepoPG) CountByVisitDate(ctx context.Context, day dates.Date) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_revisits WHERE visit_date = $1`, day).Scan(&n)
	return n, err
}
