package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const patientCols = `id, uhid, first_name, last_name, gender, date_of_birth, age,
	blood_group, phone, email, address, emergency_contact, allergies,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UHID, &p.FirstName, &p.LastName, &p.Gender,
		&p.DateOfBirth, &p.Age, &p.BloodGroup, &p.Phone, &p.Email, &p.Address,
		&p.EmergencyContact, &p.Allergies, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPatients(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *patientRepoPG) NextSequence(ctx context.Context) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx, "SELECT nextval('patient_uhid_seq')").Scan(&n)
	return n, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, uhid, first_name, last_name, gender, date_of_birth,
			age, blood_group, phone, email, address, emergency_contact, allergies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		p.ID, p.UHID, p.FirstName, p.LastName, p.Gender, p.DateOfBirth,
		p.Age, p.BloodGroup, p.Phone, p.Email, p.Address, p.EmergencyContact, p.Allergies,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id)
}

func (r *patientRepoPG) GetByUHID(ctx context.Context, uhid string) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patients WHERE uhid = $1`, uhid)
}

func (r *patientRepoPG) getOne(ctx context.Context, sql string, arg interface{}) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, sql, arg))
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, gender=$4, date_of_birth=$5,
			age=$6, blood_group=$7, phone=$8, email=$9, address=$10,
			emergency_contact=$11, allergies=$12, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Gender, p.DateOfBirth, p.Age,
		p.BloodGroup, p.Phone, p.Email, p.Address, p.EmergencyContact, p.Allergies)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return r.Search(ctx, nil, limit, offset)
}

func (r *patientRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	q := db.NewQuery("patients", patientCols).OrderBy("created_at DESC")
	if v, ok := params["q"]; ok {
		q.Contains(v, "first_name", "last_name", "uhid", "phone")
	}
	if v, ok := params["gender"]; ok {
		q.Eq("gender", v)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, q.ListSQL(), q.ListArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanPatients(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *patientRepoPG) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE created_at >= $1`, since).Scan(&n)
	return n, err
}
