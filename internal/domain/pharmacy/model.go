package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

// Medication maps to the medications table.
type Medication struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	GenericName  *string   `db:"generic_name" json:"generic_name,omitempty"`
	Manufacturer *string   `db:"manufacturer" json:"manufacturer,omitempty"`
	Category     *string   `db:"category" json:"category,omitempty"`
	DosageForm   *string   `db:"dosage_form" json:"dosage_form,omitempty"`
	Strength     *string   `db:"strength" json:"strength,omitempty"`
	Unit         string    `db:"unit" json:"unit"`
	HSNCode      *string   `db:"hsn_code" json:"hsn_code,omitempty"`
	GSTPercent   float64   `db:"gst_percent" json:"gst_percent"`
	ReorderLevel int       `db:"reorder_level" json:"reorder_level"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Batch maps to the medicine_batches table.
type Batch struct {
	ID            uuid.UUID `db:"id" json:"id"`
	MedicationID  uuid.UUID `db:"medication_id" json:"medication_id"`
	BatchNumber   string    `db:"batch_number" json:"batch_number"`
	ExpiryDate    time.Time `db:"expiry_date" json:"expiry_date"`
	Quantity      int       `db:"quantity" json:"quantity"`
	PurchasePrice float64   `db:"purchase_price" json:"purchase_price"`
	SellingPrice  float64   `db:"selling_price" json:"selling_price"`
	MRP           float64   `db:"mrp" json:"mrp"`
	Supplier      *string   `db:"supplier" json:"supplier,omitempty"`
	ReceivedAt    time.Time `db:"received_at" json:"received_at"`
}

// Expired reports whether the batch can no longer be sold on day.
func (b *Batch) Expired(day time.Time) bool {
	return b.ExpiryDate.Before(truncateDay(day))
}

// StockBatch is a batch joined with its medication name, used by reports.
type StockBatch struct {
	Batch
	MedicationName string `json:"medication_name"`
}

// StockSummary is the on-hand position of one medication.
type StockSummary struct {
	MedicationID  uuid.UUID  `json:"medication_id"`
	Name          string     `json:"name"`
	Category      *string    `json:"category,omitempty"`
	TotalQuantity int        `json:"total_quantity"`
	ReorderLevel  int        `json:"reorder_level"`
	BatchCount    int        `json:"batch_count"`
	NearestExpiry *time.Time `json:"nearest_expiry,omitempty"`
	ExpiringSoon  int        `json:"expiring_soon"`
	LowStock      bool       `json:"low_stock"`
}

// Pick is one batch chosen to fill part of a dispensed quantity.
type Pick struct {
	BatchID     uuid.UUID `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
