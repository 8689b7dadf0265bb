package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *DoctorSchedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*DoctorSchedule, error)
	Update(ctx context.Context, s *DoctorSchedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByDoctor returns every schedule of the doctor ordered by weekday
	// and start time.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*DoctorSchedule, error)
	// ListActiveByDay returns active schedules of every doctor for a weekday.
	ListActiveByDay(ctx context.Context, day int) ([]*DoctorSchedule, error)
}
