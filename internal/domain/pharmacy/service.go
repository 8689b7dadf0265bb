package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/pharmacy/stockimport"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/dates"
)

var (
	ErrMedicationNotFound = errors.New("medication not found")
	ErrBatchNotFound      = errors.New("batch not found")
	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrDuplicate          = errors.New("record already exists")
)

type Service struct {
	meds        MedicationRepository
	batches     BatchRepository
	purchases   PurchaseRepository
	tx          db.TxRunner
	logger      zerolog.Logger
	warningDays int
	reorder     int
	now         func() time.Time
}

func NewService(meds MedicationRepository, batches BatchRepository, purchases PurchaseRepository,
	tx db.TxRunner, logger zerolog.Logger, expiryWarningDays int) *Service {
	return &Service{
		meds:        meds,
		batches:     batches,
		purchases:   purchases,
		tx:          tx,
		logger:      logger,
		warningDays: expiryWarningDays,
		reorder:     DefaultReorderLevel,
		now:         time.Now,
	}
}

// DefaultReorderLevel applies to medications created implicitly by
// purchases and imports.
const DefaultReorderLevel = 10

// SetDefaultReorderLevel overrides DefaultReorderLevel. Non-positive values
// are ignored.
func (s *Service) SetDefaultReorderLevel(n int) {
	if n > 0 {
		s.reorder = n
	}
}

func (s *Service) today() time.Time {
	return truncateDay(s.now())
}

// -- Medications --

func validateMedication(m *Medication) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Unit == "" {
		m.Unit = "unit"
	}
	if m.GSTPercent < 0 || m.GSTPercent > 100 {
		return fmt.Errorf("gst_percent must be between 0 and 100")
	}
	if m.ReorderLevel < 0 {
		return fmt.Errorf("reorder_level must not be negative")
	}
	return nil
}

func (s *Service) CreateMedication(ctx context.Context, m *Medication) error {
	if err := validateMedication(m); err != nil {
		return err
	}
	if err := s.meds.Create(ctx, m); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("medication %q: %w", m.Name, ErrDuplicate)
		}
		return err
	}
	return nil
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.meds.GetByID(ctx, id)
}

func (s *Service) UpdateMedication(ctx context.Context, m *Medication) error {
	if m.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}
	if err := validateMedication(m); err != nil {
		return err
	}
	if err := s.meds.Update(ctx, m); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("medication %q: %w", m.Name, ErrDuplicate)
		}
		return err
	}
	return nil
}

func (s *Service) DeleteMedication(ctx context.Context, id uuid.UUID) error {
	return s.meds.Delete(ctx, id)
}

func (s *Service) SearchMedications(ctx context.Context, params map[string]string, limit, offset int) ([]*Medication, int, error) {
	return s.meds.Search(ctx, params, limit, offset)
}

// FindOrCreateByName returns the medication whose name matches
// case-insensitively, creating it from tmpl when there is none.
func (s *Service) FindOrCreateByName(ctx context.Context, tmpl Medication) (*Medication, error) {
	name := strings.TrimSpace(tmpl.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	m, err := s.meds.GetByName(ctx, name)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrMedicationNotFound) {
		return nil, err
	}
	created := tmpl
	created.Name = name
	created.IsActive = true
	if created.ReorderLevel == 0 {
		created.ReorderLevel = s.reorder
	}
	if err := validateMedication(&created); err != nil {
		return nil, err
	}
	if err := s.meds.Create(ctx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// -- Batches --

func validateBatch(b *Batch) error {
	b.BatchNumber = strings.TrimSpace(b.BatchNumber)
	switch {
	case b.MedicationID == uuid.Nil:
		return fmt.Errorf("medication_id is required")
	case b.BatchNumber == "":
		return fmt.Errorf("batch_number is required")
	case b.ExpiryDate.IsZero():
		return fmt.Errorf("expiry_date is required")
	case b.Quantity < 0:
		return fmt.Errorf("quantity must not be negative")
	case b.PurchasePrice < 0, b.SellingPrice < 0, b.MRP < 0:
		return fmt.Errorf("prices must not be negative")
	}
	b.ExpiryDate = truncateDay(b.ExpiryDate)
	if b.SellingPrice == 0 {
		b.SellingPrice = b.MRP
	}
	if b.MRP == 0 {
		b.MRP = b.SellingPrice
	}
	return nil
}

func (s *Service) CreateBatch(ctx context.Context, b *Batch) error {
	if err := validateBatch(b); err != nil {
		return err
	}
	if _, err := s.meds.GetByID(ctx, b.MedicationID); err != nil {
		return err
	}
	if err := s.batches.Create(ctx, b); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("batch %s: %w", b.BatchNumber, ErrDuplicate)
		}
		return err
	}
	return nil
}

func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error) {
	return s.batches.GetByID(ctx, id)
}

func (s *Service) UpdateBatch(ctx context.Context, b *Batch) error {
	existing, err := s.batches.GetByID(ctx, b.ID)
	if err != nil {
		return err
	}
	b.MedicationID = existing.MedicationID
	if err := validateBatch(b); err != nil {
		return err
	}
	return s.batches.Update(ctx, b)
}

func (s *Service) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	return s.batches.Delete(ctx, id)
}

func (s *Service) ListBatches(ctx context.Context, medicationID uuid.UUID) ([]*Batch, error) {
	return s.batches.ListByMedication(ctx, medicationID)
}

// AdjustStock adds delta (negative to remove) to a batch. Stock never goes
// below zero.
func (s *Service) AdjustStock(ctx context.Context, batchID uuid.UUID, delta int) (int, error) {
	if delta == 0 {
		b, err := s.batches.GetByID(ctx, batchID)
		if err != nil {
			return 0, err
		}
		return b.Quantity, nil
	}
	qty, err := s.batches.AdjustQuantity(ctx, batchID, delta)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("batch_id", batchID.String()).Int("delta", delta).Int("quantity", qty).Msg("stock adjusted")
	return qty, nil
}

// PickBatches plans a first-expiry-first-out draw of qty units.
func (s *Service) PickBatches(ctx context.Context, medicationID uuid.UUID, qty int) ([]Pick, error) {
	batches, err := s.batches.ListByMedication(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	picks, err := PlanPicks(batches, qty, s.today())
	if err != nil {
		return nil, fmt.Errorf("medication %s: %w", medicationID, err)
	}
	return picks, nil
}

// -- Stock reports --

func (s *Service) StockSummary(ctx context.Context) ([]StockSummary, error) {
	meds, err := s.meds.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	batches, err := s.batches.ListInStock(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(meds, batches, s.today(), s.warningDays), nil
}

func (s *Service) LowStock(ctx context.Context) ([]StockSummary, error) {
	all, err := s.StockSummary(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]StockSummary, 0)
	for _, item := range all {
		if item.LowStock {
			low = append(low, item)
		}
	}
	return low, nil
}

// ExpiringBatches lists in-stock batches expiring within days, including
// those already expired.
func (s *Service) ExpiringBatches(ctx context.Context, days int) ([]*StockBatch, error) {
	if days < 0 {
		return nil, fmt.Errorf("days must not be negative")
	}
	return s.batches.ListExpiringBefore(ctx, s.today().AddDate(0, 0, days))
}

func (s *Service) WarningDays() int {
	return s.warningDays
}

// -- Purchases --

// CreatePurchase recalculates the invoice and stores it with one new batch
// per line, creating medications by name where needed.
func (s *Service) CreatePurchase(ctx context.Context, p *Purchase) error {
	if err := validatePurchaseHeader(p); err != nil {
		return err
	}
	if p.PurchaseDate.IsZero() {
		p.PurchaseDate = dates.Of(s.now())
	}
	lines, totals, err := RecalculatePurchase(p.Items)
	if err != nil {
		return err
	}
	p.Items = lines
	p.Subtotal = totals.Subtotal
	p.DiscountTotal = totals.DiscountTotal
	p.CGSTTotal = totals.CGSTTotal
	p.SGSTTotal = totals.SGSTTotal
	p.GrandTotal = totals.GrandTotal

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.purchases.Create(ctx, p); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("invoice %s from %s: %w", p.InvoiceNumber, p.Supplier, ErrDuplicate)
			}
			return err
		}
		for i := range p.Items {
			if err := s.receiveLine(ctx, p, &p.Items[i]); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("purchase_id", p.ID.String()).Str("invoice", p.InvoiceNumber).
		Int("lines", len(p.Items)).Float64("grand_total", p.GrandTotal).Msg("purchase recorded")
	return nil
}

func (s *Service) receiveLine(ctx context.Context, p *Purchase, l *PurchaseLine) error {
	var med *Medication
	var err error
	if l.MedicationID != nil {
		med, err = s.meds.GetByID(ctx, *l.MedicationID)
	} else {
		med, err = s.FindOrCreateByName(ctx, Medication{Name: l.MedicationName, GSTPercent: l.GSTPercent})
	}
	if err != nil {
		return err
	}
	l.MedicationID = &med.ID
	l.MedicationName = med.Name

	supplier := p.Supplier
	b := &Batch{
		MedicationID:  med.ID,
		BatchNumber:   strings.TrimSpace(l.BatchNumber),
		ExpiryDate:    l.ExpiryDate.Time,
		Quantity:      l.Quantity + l.FreeQuantity,
		PurchasePrice: l.CostPerUnit,
		SellingPrice:  l.MRP,
		MRP:           l.MRP,
		Supplier:      &supplier,
	}
	if err := s.batches.Create(ctx, b); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("batch %s: %w", b.BatchNumber, ErrDuplicate)
		}
		return err
	}
	l.BatchID = &b.ID
	return s.purchases.CreateLine(ctx, p.ID, l)
}

func (s *Service) GetPurchase(ctx context.Context, id uuid.UUID) (*Purchase, error) {
	return s.purchases.GetByID(ctx, id)
}

func (s *Service) ListPurchases(ctx context.Context, limit, offset int) ([]*Purchase, int, error) {
	return s.purchases.List(ctx, limit, offset)
}

// -- Bulk import --

// NewImporter returns a stock importer writing through this service.
func (s *Service) NewImporter() *stockimport.Importer {
	return stockimport.NewImporter(importStore{s}, s.logger)
}

type importStore struct {
	svc *Service
}

func (st importStore) BatchExists(ctx context.Context, batchNumber string, expiry time.Time) (bool, error) {
	return st.svc.batches.ExistsByKey(ctx, batchNumber, expiry)
}

// ImportRow runs in its own transaction so a failed batch insert does not
// leave a medication behind.
func (st importStore) ImportRow(ctx context.Context, row stockimport.StockRow) error {
	s := st.svc
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		tmpl := Medication{Name: row.Name, GSTPercent: row.GSTPercent}
		if row.GenericName != "" {
			tmpl.GenericName = &row.GenericName
		}
		if row.Manufacturer != "" {
			tmpl.Manufacturer = &row.Manufacturer
		}
		if row.Category != "" {
			tmpl.Category = &row.Category
		}
		if row.HSNCode != "" {
			tmpl.HSNCode = &row.HSNCode
		}
		med, err := s.FindOrCreateByName(ctx, tmpl)
		if err != nil {
			return err
		}
		b := &Batch{
			MedicationID:  med.ID,
			BatchNumber:   row.BatchNumber,
			ExpiryDate:    row.ExpiryDate,
			Quantity:      row.Quantity,
			PurchasePrice: row.PurchasePrice,
			SellingPrice:  row.SellingPrice,
			MRP:           row.MRP,
		}
		if row.Supplier != "" {
			b.Supplier = &row.Supplier
		}
		if err := validateBatch(b); err != nil {
			return err
		}
		return s.batches.Create(ctx, b)
	})
}
