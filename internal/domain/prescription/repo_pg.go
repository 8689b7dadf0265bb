package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type prescriptionRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const rxCols = `id, patient_id, doctor_id, diagnosis, notes, status, prescribed_at, dispensed_at, bill_id`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.Diagnosis, &p.Notes, &p.Status,
		&p.PrescribedAt, &p.DispensedAt, &p.BillID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, doctor_id, diagnosis, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING prescribed_at`,
		p.ID, p.PatientID, p.DoctorID, p.Diagnosis, p.Notes, p.Status,
	).Scan(&p.PrescribedAt)
}

func (r *prescriptionRepoPG) CreateItem(ctx context.Context, it *Item) error {
	it.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription_items (id, prescription_id, medication_id, dosage, frequency,
			duration_days, quantity, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		it.ID, it.PrescriptionID, it.MedicationID, it.Dosage, it.Frequency,
		it.DurationDays, it.Quantity, it.Instructions)
	return err
}

func (r *prescriptionRepoPG) loadItems(ctx context.Context, p *Prescription) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT i.id, i.prescription_id, i.medication_id, m.name, i.dosage, i.frequency,
			i.duration_days, i.quantity, i.instructions
		FROM prescription_items i
		JOIN medications m ON m.id = i.medication_id
		WHERE i.prescription_id = $1
		ORDER BY m.name`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	p.Items = []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.MedicationID, &it.MedicationName,
			&it.Dosage, &it.Frequency, &it.DurationDays, &it.Quantity, &it.Instructions); err != nil {
			return err
		}
		p.Items = append(p.Items, it)
	}
	return rows.Err()
}

func (r *prescriptionRepoPG) get(ctx context.Context, sql string, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, sql, id))
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.get(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id)
}

func (r *prescriptionRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.get(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1 FOR UPDATE`, id)
}

func (r *prescriptionRepoPG) list(ctx context.Context, q *db.Query, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.ListSQL(), q.ListArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		items = append(items, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	// items are loaded after the cursor is closed; a tenant conn runs one query at a time
	for _, p := range items {
		if err := r.loadItems(ctx, p); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	q := db.NewQuery("prescriptions", rxCols).Eq("patient_id", patientID).OrderBy("prescribed_at DESC")
	return r.list(ctx, q, limit, offset)
}

func (r *prescriptionRepoPG) ListPending(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	q := db.NewQuery("prescriptions", rxCols).Eq("status", StatusPending).OrderBy("prescribed_at")
	return r.list(ctx, q, limit, offset)
}

func (r *prescriptionRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescriptions SET status = $2 WHERE id = $1 AND status = 'pending'`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrNotPending(ctx, id)
	}
	return nil
}

func (r *prescriptionRepoPG) MarkDispensed(ctx context.Context, id, billID uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions SET status = 'dispensed', bill_id = $2, dispensed_at = $3
		WHERE id = $1 AND status = 'pending'`, id, billID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrNotPending(ctx, id)
	}
	return nil
}

func (r *prescriptionRepoPG) missingOrNotPending(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM prescriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrNotPending
}
