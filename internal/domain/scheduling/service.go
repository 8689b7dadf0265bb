package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/dates"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrScheduleConflict = errors.New("schedule overlaps an existing active schedule")
	ErrNotDoctor        = errors.New("staff member is not a doctor")
)

// Doctors resolves the staff member a schedule belongs to.
type Doctors interface {
	Get(ctx context.Context, id uuid.UUID) (*staff.Staff, error)
}

type Service struct {
	repo    Repository
	doctors Doctors
	tx      db.TxRunner
	now     func() time.Time
}

func NewService(repo Repository, doctors Doctors, tx db.TxRunner) *Service {
	return &Service{repo: repo, doctors: doctors, tx: tx, now: time.Now}
}

func validate(s *DoctorSchedule) error {
	if s.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be between 0 (Sunday) and 6 (Saturday)")
	}
	s.StartTime = strings.TrimSpace(s.StartTime)
	s.EndTime = strings.TrimSpace(s.EndTime)
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if start >= end {
		return fmt.Errorf("start_time must be before end_time")
	}
	if s.SlotMinutes == 0 {
		s.SlotMinutes = DefaultSlotMinutes
	}
	if s.SlotMinutes < 0 || s.SlotMinutes > end-start {
		return fmt.Errorf("slot_minutes must be between 1 and the schedule length")
	}
	return nil
}

func (s *Service) checkDoctor(ctx context.Context, id uuid.UUID) error {
	st, err := s.doctors.Get(ctx, id)
	if err != nil {
		return err
	}
	if st.Role != auth.RoleDoctor {
		return ErrNotDoctor
	}
	return nil
}

// checkConflict compares an active schedule against the doctor's other
// active schedules.
func (s *Service) checkConflict(ctx context.Context, sched *DoctorSchedule) error {
	if !sched.IsActive {
		return nil
	}
	existing, err := s.repo.ListByDoctor(ctx, sched.DoctorID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == sched.ID || !other.IsActive {
			continue
		}
		if sched.Overlaps(other) {
			return fmt.Errorf("%w: %s %s-%s", ErrScheduleConflict,
				time.Weekday(other.DayOfWeek), other.StartTime, other.EndTime)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, sched *DoctorSchedule) error {
	if err := validate(sched); err != nil {
		return err
	}
	if err := s.checkDoctor(ctx, sched.DoctorID); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkConflict(ctx, sched); err != nil {
			return err
		}
		return s.repo.Create(ctx, sched)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*DoctorSchedule, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces the schedule window. The owning doctor cannot change.
func (s *Service) Update(ctx context.Context, sched *DoctorSchedule) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, sched.ID)
		if err != nil {
			return err
		}
		sched.DoctorID = existing.DoctorID
		sched.CreatedAt = existing.CreatedAt
		if err := validate(sched); err != nil {
			return err
		}
		if err := s.checkConflict(ctx, sched); err != nil {
			return err
		}
		return s.repo.Update(ctx, sched)
	})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*DoctorSchedule, error) {
	return s.repo.ListByDoctor(ctx, doctorID)
}

// OnDuty returns the active schedules covering at. A zero at means now.
func (s *Service) OnDuty(ctx context.Context, at time.Time) ([]*DoctorSchedule, error) {
	if at.IsZero() {
		at = s.now()
	}
	day, err := s.repo.ListActiveByDay(ctx, int(at.Weekday()))
	if err != nil {
		return nil, err
	}
	out := make([]*DoctorSchedule, 0, len(day))
	for _, sched := range day {
		if sched.Covers(at) {
			out = append(out, sched)
		}
	}
	return out, nil
}

// Slots lists the slot start times of every active schedule the doctor has
// on that date's weekday, in time order.
func (s *Service) Slots(ctx context.Context, doctorID uuid.UUID, date dates.Date) ([]Slot, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("date is required")
	}
	scheds, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	weekday := int(date.Weekday())
	out := []Slot{}
	for _, sched := range scheds {
		if sched.IsActive && sched.DayOfWeek == weekday {
			out = append(out, sched.Slots()...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// ListByDay returns every active schedule on a weekday.
func (s *Service) ListByDay(ctx context.Context, day int) ([]*DoctorSchedule, error) {
	if day < 0 || day > 6 {
		return nil, fmt.Errorf("day must be between 0 (Sunday) and 6 (Saturday)")
	}
	return s.repo.ListActiveByDay(ctx, day)
}
