package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	CreateItem(ctx context.Context, it *Item) error
	// GetByID loads the prescription with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// GetForUpdate is GetByID holding a row lock for the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	ListPending(ctx context.Context, limit, offset int) ([]*Prescription, int, error)
	// SetStatus moves a pending prescription to status, returning ErrNotPending
	// when it is no longer pending.
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkDispensed(ctx context.Context, id, billID uuid.UUID, at time.Time) error
}
