package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/dates"
)

const (
	DiscountFlat    = "flat"
	DiscountPercent = "percent"
)

const (
	PaymentCash      = "cash"
	PaymentCard      = "card"
	PaymentUPI       = "upi"
	PaymentInsurance = "insurance"
)

const (
	StatusPaid    = "paid"
	StatusPending = "pending"
	StatusPartial = "partial"
)

var PaymentMethods = []string{PaymentCash, PaymentCard, PaymentUPI, PaymentInsurance}

// Bill maps to the billing table.
type Bill struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	BillNumber     string     `db:"bill_number" json:"bill_number"`
	PatientID      *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	CustomerName   *string    `db:"customer_name" json:"customer_name,omitempty"`
	CustomerPhone  *string    `db:"customer_phone" json:"customer_phone,omitempty"`
	PrescriptionID *uuid.UUID `db:"prescription_id" json:"prescription_id,omitempty"`
	Subtotal       float64    `db:"subtotal" json:"subtotal"`
	DiscountType   string     `db:"discount_type" json:"discount_type"`
	DiscountValue  float64    `db:"discount_value" json:"discount_value"`
	DiscountAmount float64    `db:"discount_amount" json:"discount_amount"`
	TaxPercent     float64    `db:"tax_percent" json:"tax_percent"`
	TaxAmount      float64    `db:"tax_amount" json:"tax_amount"`
	Total          float64    `db:"total" json:"total"`
	PaymentMethod  string     `db:"payment_method" json:"payment_method"`
	PaymentStatus  string     `db:"payment_status" json:"payment_status"`
	AmountPaid     float64    `db:"amount_paid" json:"amount_paid"`
	CreatedBy      *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	Items          []BillItem `json:"items"`
}

// Balance is what remains to be collected.
func (b *Bill) Balance() float64 {
	if b.AmountPaid >= b.Total {
		return 0
	}
	return b.Total - b.AmountPaid
}

// BillItem maps to the billing_item table.
type BillItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	BillID         uuid.UUID `db:"bill_id" json:"bill_id"`
	MedicationID   uuid.UUID `db:"medication_id" json:"medication_id"`
	BatchID        uuid.UUID `db:"batch_id" json:"batch_id"`
	MedicationName string    `db:"medication_name" json:"medication_name"`
	BatchNumber    string    `db:"batch_number" json:"batch_number"`
	Quantity       int       `db:"quantity" json:"quantity"`
	UnitPrice      float64   `db:"unit_price" json:"unit_price"`
	LineTotal      float64   `db:"line_total" json:"line_total"`
}

// Filter narrows ListBills. Zero fields are ignored; To is exclusive.
type Filter struct {
	From          *time.Time
	To            *time.Time
	PaymentStatus string
	PatientID     *uuid.UUID
}

// Revenue is the takings of one day.
type Revenue struct {
	Date      dates.Date         `json:"date"`
	Bills     int                `json:"bills"`
	Total     float64            `json:"total"`
	Collected float64            `json:"collected"`
	Pending   float64            `json:"pending"`
	ByMethod  map[string]float64 `json:"by_method"`
}
