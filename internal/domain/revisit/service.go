package revisit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/websocket"
	"github.com/hms/hms/pkg/dates"
)

var (
	ErrNotFound        = errors.New("revisit not found")
	ErrNotScheduled    = errors.New("revisit is not scheduled")
	ErrPatientNotFound = errors.New("patient or doctor does not exist")
)

const (
	DefaultUpcomingDays = 7
	MaxUpcomingDays     = 90
)

type Service struct {
	repo   Repository
	events websocket.EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, events: websocket.Nop{}, logger: logger, now: time.Now}
}

// SetPublisher sends recorded, completed and missed revisits to p.
func (s *Service) SetPublisher(p websocket.EventPublisher) {
	if p == nil {
		p = websocket.Nop{}
	}
	s.events = p
}

func (s *Service) publish(ctx context.Context, typ string, id uuid.UUID, data interface{}) {
	ev := websocket.NewEvent(websocket.TopicRevisits, typ, id, data)
	db.AfterCommit(ctx, func() {
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("event", typ).Msg("publish revisit event")
		}
	})
}

func (s *Service) today() dates.Date {
	return dates.Of(s.now())
}

func trimOpt(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) normalize(v *Revisit) error {
	if v.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if v.VisitDate.IsZero() {
		v.VisitDate = s.today()
	}
	if !v.FollowUpDate.IsZero() && v.FollowUpDate.Before(v.VisitDate.Time) {
		return fmt.Errorf("follow_up_date must not be before visit_date")
	}
	v.Reason = trimOpt(v.Reason)
	v.Department = trimOpt(v.Department)
	v.Notes = trimOpt(v.Notes)
	switch v.Status {
	case "":
		if v.FollowUpDate.IsZero() {
			v.Status = StatusCompleted
		} else {
			v.Status = StatusScheduled
		}
	case StatusScheduled:
		if v.FollowUpDate.IsZero() {
			return fmt.Errorf("a scheduled revisit needs a follow_up_date")
		}
	case StatusCompleted, StatusMissed:
	default:
		return fmt.Errorf("status must be scheduled, completed or missed")
	}
	return nil
}

func mapFK(err error) error {
	if db.IsForeignKeyViolation(err) {
		return ErrPatientNotFound
	}
	return err
}

// Record stores a visit. Without an explicit status it is scheduled when a
// follow-up date is given and completed otherwise.
func (s *Service) Record(ctx context.Context, v *Revisit) error {
	if err := s.normalize(v); err != nil {
		return err
	}
	if err := mapFK(s.repo.Create(ctx, v)); err != nil {
		return err
	}
	s.publish(ctx, "revisit.recorded", v.ID, v)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Revisit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, v *Revisit) error {
	existing, err := s.repo.GetByID(ctx, v.ID)
	if err != nil {
		return err
	}
	v.PatientID = existing.PatientID
	v.CreatedAt = existing.CreatedAt
	if v.Status == "" {
		v.Status = existing.Status
	}
	if err := s.normalize(v); err != nil {
		return err
	}
	return mapFK(s.repo.Update(ctx, v))
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, notes *string) (*Revisit, error) {
	if err := s.repo.Complete(ctx, id, trimOpt(notes)); err != nil {
		return nil, err
	}
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "revisit.completed", v.ID, v)
	return v, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Revisit, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByDate(ctx context.Context, day dates.Date) ([]*Revisit, error) {
	if day.IsZero() {
		day = s.today()
	}
	return s.repo.ListByVisitDate(ctx, day)
}

func (s *Service) CountToday(ctx context.Context) (int, error) {
	return s.repo.CountByVisitDate(ctx, s.today())
}

// Upcoming returns scheduled follow-ups due from `from` through the next
// days-1 days. days defaults to DefaultUpcomingDays.
func (s *Service) Upcoming(ctx context.Context, from dates.Date, days int) ([]*Revisit, error) {
	if from.IsZero() {
		from = s.today()
	}
	if days == 0 {
		days = DefaultUpcomingDays
	}
	if days < 0 || days > MaxUpcomingDays {
		return nil, fmt.Errorf("days must be between 1 and %d", MaxUpcomingDays)
	}
	return s.repo.ListScheduledDue(ctx, from, from.AddDays(days-1))
}

// MarkMissed flags scheduled follow-ups due before the given date. A zero
// date means today.
func (s *Service) MarkMissed(ctx context.Context, before dates.Date) (int64, error) {
	if before.IsZero() {
		before = s.today()
	}
	n, err := s.repo.MarkMissed(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Str("before", before.String()).Msg("revisits marked missed")
		s.publish(ctx, "revisit.missed", uuid.Nil, map[string]interface{}{"count": n, "before": before.String()})
	}
	return n, nil
}

// Stats summarizes visits dated from through to inclusive.
func (s *Service) Stats(ctx context.Context, from, to dates.Date) (*Stats, error) {
	if to.IsZero() {
		to = s.today()
	}
	if from.IsZero() {
		from = to.AddDays(-29)
	}
	if to.Before(from.Time) {
		return nil, fmt.Errorf("to must not be before from")
	}
	visits, err := s.repo.ListVisitRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	st := Summarize(visits)
	st.From, st.To = from, to
	return &st, nil
}
