package scheduling

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type scheduleRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &scheduleRepoPG{pool: pool}
}

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	return db.From(ctx, r.pool)
}

const scheduleCols = `id, doctor_id, day_of_week, start_time, end_time, slot_minutes, room, is_active, created_at`

func scanSchedule(row pgx.Row) (*DoctorSchedule, error) {
	var s DoctorSchedule
	err := row.Scan(&s.ID, &s.DoctorID, &s.DayOfWeek, &s.StartTime, &s.EndTime,
		&s.SlotMinutes, &s.Room, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduleRepoPG) Create(ctx context.Context, s *DoctorSchedule) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_schedules (id, doctor_id, day_of_week, start_time, end_time,
			slot_minutes, room, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		s.ID, s.DoctorID, s.DayOfWeek, s.StartTime, s.EndTime, s.SlotMinutes, s.Room, s.IsActive,
	).Scan(&s.CreatedAt)
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DoctorSchedule, error) {
	s, err := scanSchedule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+scheduleCols+` FROM doctor_schedules WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, ErrScheduleNotFound
	}
	return s, err
}

func (r *scheduleRepoPG) Update(ctx context.Context, s *DoctorSchedule) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_schedules SET day_of_week=$2, start_time=$3, end_time=$4,
			slot_minutes=$5, room=$6, is_active=$7
		WHERE id = $1`,
		s.ID, s.DayOfWeek, s.StartTime, s.EndTime, s.SlotMinutes, s.Room, s.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *scheduleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *scheduleRepoPG) list(ctx context.Context, sql string, arg interface{}) ([]*DoctorSchedule, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DoctorSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *scheduleRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*DoctorSchedule, error) {
	return r.list(ctx, `SELECT `+scheduleCols+` FROM doctor_schedules
		WHERE doctor_id = $1 ORDER BY day_of_week, start_time`, doctorID)
}

func (r *scheduleRepoPG) ListActiveByDay(ctx context.Context, day int) ([]*DoctorSchedule, error) {
	return r.list(ctx, `SELECT `+scheduleCols+` FROM doctor_schedules
		WHERE day_of_week = $1 AND is_active ORDER BY start_time`, day)
}
