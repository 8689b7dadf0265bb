package pharmacy

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MedicationRepository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	// GetByName matches the name case-insensitively.
	GetByName(ctx context.Context, name string) (*Medication, error)
	Update(ctx context.Context, m *Medication) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medication, int, error)
	ListActive(ctx context.Context) ([]*Medication, error)
}

type BatchRepository interface {
	Create(ctx context.Context, b *Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	Update(ctx context.Context, b *Batch) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByMedication(ctx context.Context, medicationID uuid.UUID) ([]*Batch, error)
	// ListInStock returns every batch with quantity > 0.
	ListInStock(ctx context.Context) ([]*Batch, error)
	// ListStock joins batches with medication names, ordered by name and expiry.
	ListStock(ctx context.Context) ([]*StockBatch, error)
	ListExpiringBefore(ctx context.Context, before time.Time) ([]*StockBatch, error)
	// AdjustQuantity adds delta atomically and fails with ErrInsufficientStock
	// when the result would be negative.
	AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (int, error)
	// ExistsByKey matches lower(batch_number) and expiry_date across all
	// medications.
	ExistsByKey(ctx context.Context, batchNumber string, expiry time.Time) (bool, error)
}

type PurchaseRepository interface {
	Create(ctx context.Context, p *Purchase) error
	CreateLine(ctx context.Context, purchaseID uuid.UUID, l *PurchaseLine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Purchase, error)
	List(ctx context.Context, limit, offset int) ([]*Purchase, int, error)
}
