package revisit

import (
	"context"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/dates"
)

type Repository interface {
	Create(ctx context.Context, r *Revisit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Revisit, error)
	Update(ctx context.Context, r *Revisit) error
	// Complete moves a scheduled revisit to completed, appending notes when
	// given.
	Complete(ctx context.Context, id uuid.UUID, notes *string) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Revisit, int, error)
	ListByVisitDate(ctx context.Context, day dates.Date) ([]*Revisit, error)
	// ListScheduledDue returns scheduled revisits with a follow-up date in
	// [from, to].
	ListScheduledDue(ctx context.Context, from, to dates.Date) ([]*Revisit, error)
	// ListVisitRange returns every revisit with a visit date in [from, to].
	ListVisitRange(ctx context.Context, from, to dates.Date) ([]*Revisit, error)
	MarkMissed(ctx context.Context, before dates.Date) (int64, error)
	CountByVisitDate(ctx context.Context, day dates.Date) (int, error)
}
