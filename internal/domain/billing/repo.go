package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// NextSequence returns the next bill sequence for day, starting at 1.
	NextSequence(ctx context.Context, day time.Time) (int, error)
	Create(ctx context.Context, b *Bill) error
	CreateItem(ctx context.Context, it *BillItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Bill, int, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, amountPaid float64, status, method string) error
	// Revenue sums bills created in [from, to).
	Revenue(ctx context.Context, from, to time.Time) (*Revenue, error)
}
