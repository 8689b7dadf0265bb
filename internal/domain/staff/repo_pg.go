package staff

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type staffRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &staffRepoPG{pool: pool}
}

func (r *staffRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const staffCols = `id, employee_code, first_name, last_name, role, department, specialization,
	phone, email, qualification, joined_on, is_active, password_hash, created_at, updated_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.EmployeeCode, &s.FirstName, &s.LastName, &s.Role, &s.Department,
		&s.Specialization, &s.Phone, &s.Email, &s.Qualification, &s.JoinedOn, &s.IsActive,
		&s.PasswordHash, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO staff (id, employee_code, first_name, last_name, role, department,
			specialization, phone, email, qualification, joined_on, is_active, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		s.ID, s.EmployeeCode, s.FirstName, s.LastName, s.Role, s.Department, s.Specialization,
		s.Phone, s.Email, s.Qualification, s.JoinedOn, s.IsActive, s.PasswordHash,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *staffRepoPG) one(ctx context.Context, sql string, arg interface{}) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, sql, arg))
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *staffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return r.one(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id)
}

func (r *staffRepoPG) GetByEmail(ctx context.Context, email string) (*Staff, error) {
	return r.one(ctx, `SELECT `+staffCols+` FROM staff WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (r *staffRepoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *staffRepoPG) Update(ctx context.Context, s *Staff) error {
	return r.exec(ctx, `
		UPDATE staff SET employee_code=$2, first_name=$3, last_name=$4, role=$5, department=$6,
			specialization=$7, phone=$8, email=$9, qualification=$10, joined_on=$11,
			is_active=$12, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.EmployeeCode, s.FirstName, s.LastName, s.Role, s.Department, s.Specialization,
		s.Phone, s.Email, s.Qualification, s.JoinedOn, s.IsActive)
}

func (r *staffRepoPG) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.exec(ctx, `UPDATE staff SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
}

func (r *staffRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.exec(ctx, `UPDATE staff SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

func (r *staffRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM staff WHERE id = $1`, id)
}

func (r *staffRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Staff, int, error) {
	q := db.NewQuery("staff", staffCols).OrderBy("first_name, last_name")
	if v, ok := params["q"]; ok {
		q.Contains(v, "first_name", "last_name", "email", "employee_code")
	}
	if v, ok := params["role"]; ok {
		q.Eq("role", strings.ToLower(v))
	}
	if v, ok := params["department"]; ok {
		q.Where("lower(department) = lower(?)", v)
	}
	if v, ok := params["active"]; ok {
		if active, err := strconv.ParseBool(v); err == nil {
			q.Eq("is_active", active)
		}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.ListSQL(), q.ListArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
