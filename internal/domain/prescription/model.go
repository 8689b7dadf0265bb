package prescription

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusDispensed = "dispensed"
	StatusCancelled = "cancelled"
)

// Prescription maps to the prescriptions table.
type Prescription struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID     uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Diagnosis    *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	Status       string     `db:"status" json:"status"`
	PrescribedAt time.Time  `db:"prescribed_at" json:"prescribed_at"`
	DispensedAt  *time.Time `db:"dispensed_at" json:"dispensed_at,omitempty"`
	BillID       *uuid.UUID `db:"bill_id" json:"bill_id,omitempty"`
	Items        []Item     `json:"items"`
}

// Item maps to the prescription_items table.
type Item struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	MedicationID   uuid.UUID `db:"medication_id" json:"medication_id"`
	MedicationName string    `json:"medication_name,omitempty"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Frequency      string    `db:"frequency" json:"frequency"`
	DurationDays   int       `db:"duration_days" json:"duration_days"`
	Quantity       int       `db:"quantity" json:"quantity"`
	Instructions   *string   `db:"instructions" json:"instructions,omitempty"`
}
