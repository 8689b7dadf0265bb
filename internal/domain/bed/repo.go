package bed

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	// GetForUpdate locks the bed row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Bed, error)
	Update(ctx context.Context, b *Bed) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Bed, int, error)
	ListAll(ctx context.Context, params map[string]string) ([]*Bed, error)
}

type AllocationRepository interface {
	Create(ctx context.Context, a *Allocation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Allocation, error)
	// GetActiveByBed and GetActiveByPatient return nil, nil when nothing is open.
	GetActiveByBed(ctx context.Context, bedID uuid.UUID) (*Allocation, error)
	GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Allocation, error)
	Close(ctx context.Context, id uuid.UUID, status string, at time.Time) error
	ListActive(ctx context.Context) ([]*Allocation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Allocation, error)
}
