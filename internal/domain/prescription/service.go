package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/platform/db"
)

var (
	ErrNotFound   = errors.New("prescription not found")
	ErrNotPending = errors.New("prescription is not pending")
)

// Stock resolves medications and plans batch picks for dispensing.
type Stock interface {
	GetMedication(ctx context.Context, id uuid.UUID) (*pharmacy.Medication, error)
	PickBatches(ctx context.Context, medicationID uuid.UUID, qty int) ([]pharmacy.Pick, error)
}

// Biller creates the pharmacy bill for a dispensed prescription.
type Biller interface {
	CreateBill(ctx context.Context, req billing.CreateRequest) (*billing.Bill, error)
}

type Service struct {
	repo   Repository
	stock  Stock
	biller Biller
	tx     db.TxRunner
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, stock Stock, biller Biller, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, stock: stock, biller: biller, tx: tx, logger: logger, now: time.Now}
}

func (s *Service) prepareItem(ctx context.Context, i int, it *Item) error {
	if it.MedicationID == uuid.Nil {
		return fmt.Errorf("item %d: medication_id is required", i+1)
	}
	it.Dosage = strings.TrimSpace(it.Dosage)
	if it.Dosage == "" {
		return fmt.Errorf("item %d: dosage is required", i+1)
	}
	it.Frequency = strings.ToUpper(strings.TrimSpace(it.Frequency))
	if _, err := DosesPerDay(it.Frequency); err != nil {
		return fmt.Errorf("item %d: %w", i+1, err)
	}
	if it.DurationDays < 0 {
		return fmt.Errorf("item %d: duration_days must not be negative", i+1)
	}
	if it.Quantity < 0 {
		return fmt.Errorf("item %d: quantity must be positive", i+1)
	}
	if it.Quantity == 0 {
		q, err := DeriveQuantity(it.Frequency, it.DurationDays)
		if err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
		it.Quantity = q
	}
	med, err := s.stock.GetMedication(ctx, it.MedicationID)
	if err != nil {
		return fmt.Errorf("item %d: %w", i+1, err)
	}
	it.MedicationName = med.Name
	return nil
}

// Create stores a pending prescription. Item quantities left at zero are
// derived from frequency and duration.
func (s *Service) Create(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if p.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for i := range p.Items {
		if err := s.prepareItem(ctx, i, &p.Items[i]); err != nil {
			return err
		}
	}
	p.Status = StatusPending
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		for i := range p.Items {
			p.Items[i].PrescriptionID = p.ID
			if err := s.repo.CreateItem(ctx, &p.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.ListPending(ctx, limit, offset)
}

// CountPending is the number of prescriptions waiting to be dispensed.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	_, total, err := s.repo.ListPending(ctx, 1, 0)
	return total, err
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetStatus(ctx, id, StatusCancelled)
}

// DispenseRequest carries the billing terms for a dispensed prescription.
type DispenseRequest struct {
	DiscountType  string     `json:"discount_type"`
	DiscountValue float64    `json:"discount_value"`
	TaxPercent    float64    `json:"tax_percent"`
	PaymentMethod string     `json:"payment_method"`
	AmountPaid    *float64   `json:"amount_paid,omitempty"`
	CreatedBy     *uuid.UUID `json:"-"`
}

// mergeByMedication sums quantities of items that share a medication so each
// medication is picked once against its batches. Order of first appearance
// is kept.
func mergeByMedication(items []Item) []Item {
	merged := make([]Item, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if i, ok := index[it.MedicationID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.MedicationID] = len(merged)
		merged = append(merged, it)
	}
	return merged
}

// Dispense picks stock first-expiry-first-out for every item, bills it, and
// marks the prescription dispensed, all in one transaction. Bill events are
// published only after that transaction commits.
func (s *Service) Dispense(ctx context.Context, id uuid.UUID, req DispenseRequest) (*Prescription, *billing.Bill, error) {
	var (
		rx   *Prescription
		bill *billing.Bill
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != StatusPending {
			return fmt.Errorf("prescription is %s: %w", p.Status, ErrNotPending)
		}

		var lines []billing.LineRequest
		for _, it := range mergeByMedication(p.Items) {
			picks, err := s.stock.PickBatches(ctx, it.MedicationID, it.Quantity)
			if err != nil {
				return fmt.Errorf("%s: %w", it.MedicationName, err)
			}
			for _, pk := range picks {
				price := pk.UnitPrice
				lines = append(lines, billing.LineRequest{BatchID: pk.BatchID, Quantity: pk.Quantity, UnitPrice: &price})
			}
		}

		patientID := p.PatientID
		bill, err = s.biller.CreateBill(ctx, billing.CreateRequest{
			PatientID:      &patientID,
			PrescriptionID: &p.ID,
			Items:          lines,
			DiscountType:   req.DiscountType,
			DiscountValue:  req.DiscountValue,
			TaxPercent:     req.TaxPercent,
			PaymentMethod:  req.PaymentMethod,
			AmountPaid:     req.AmountPaid,
			CreatedBy:      req.CreatedBy,
		})
		if err != nil {
			return err
		}

		at := s.now().UTC()
		if err := s.repo.MarkDispensed(ctx, p.ID, bill.ID, at); err != nil {
			return err
		}
		p.Status = StatusDispensed
		p.DispensedAt = &at
		p.BillID = &bill.ID
		rx = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("prescription_id", rx.ID.String()).Str("bill_number", bill.BillNumber).
		Float64("total", bill.Total).Msg("prescription dispensed")
	return rx, bill, nil
}
