package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/qrcode"
	"github.com/hms/hms/internal/platform/websocket"
	"github.com/hms/hms/pkg/dates"
	"github.com/hms/hms/pkg/money"
)

var (
	ErrBillNotFound      = errors.New("bill not found")
	ErrInsufficientStock = pharmacy.ErrInsufficientStock
	ErrBatchExpired      = errors.New("batch has expired")
)

// Inventory is the pharmacy stock the billing service sells from.
type Inventory interface {
	GetBatch(ctx context.Context, id uuid.UUID) (*pharmacy.Batch, error)
	GetMedication(ctx context.Context, id uuid.UUID) (*pharmacy.Medication, error)
	AdjustStock(ctx context.Context, batchID uuid.UUID, delta int) (int, error)
}

// QRFetcher returns the PNG for a QR code payload.
type QRFetcher interface {
	Fetch(ctx context.Context, data string) ([]byte, error)
}

// Issuer identifies the pharmacy on invoices and payment codes.
type Issuer struct {
	Hospital string
	GSTIN    string
	UPIID    string
}

type Service struct {
	repo   Repository
	stock  Inventory
	qr     QRFetcher
	tx     db.TxRunner
	issuer Issuer
	events websocket.EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, stock Inventory, qr QRFetcher, tx db.TxRunner, issuer Issuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, stock: stock, qr: qr, tx: tx, issuer: issuer, events: websocket.Nop{}, logger: logger, now: time.Now}
}

// SetPublisher sends committed bills and payments to p. Events are held
// until the outermost transaction commits, so a bill created on behalf of a
// dispense is only announced once the dispense commits too.
func (s *Service) SetPublisher(p websocket.EventPublisher) {
	if p == nil {
		p = websocket.Nop{}
	}
	s.events = p
}

// billEvent is the live feed payload; items stay on the bill endpoint.
type billEvent struct {
	BillNumber    string  `json:"bill_number"`
	Total         float64 `json:"total"`
	AmountPaid    float64 `json:"amount_paid"`
	PaymentStatus string  `json:"payment_status"`
	PaymentMethod string  `json:"payment_method"`
}

func (s *Service) publish(ctx context.Context, typ string, b *Bill) {
	data := billEvent{
		BillNumber:    b.BillNumber,
		Total:         b.Total,
		AmountPaid:    b.AmountPaid,
		PaymentStatus: b.PaymentStatus,
		PaymentMethod: b.PaymentMethod,
	}
	ev := websocket.NewEvent(websocket.TopicBilling, typ, b.ID, data)
	db.AfterCommit(ctx, func() {
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("bill_id", b.ID.String()).Msg("publish bill event")
		}
	})
}

// LineRequest sells quantity units from one batch. UnitPrice defaults to the
// batch selling price.
type LineRequest struct {
	BatchID   uuid.UUID `json:"batch_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice *float64  `json:"unit_price,omitempty"`
}

type CreateRequest struct {
	PatientID      *uuid.UUID    `json:"patient_id,omitempty"`
	CustomerName   *string       `json:"customer_name,omitempty"`
	CustomerPhone  *string       `json:"customer_phone,omitempty"`
	PrescriptionID *uuid.UUID    `json:"prescription_id,omitempty"`
	Items          []LineRequest `json:"items"`
	DiscountType   string        `json:"discount_type"`
	DiscountValue  float64       `json:"discount_value"`
	TaxPercent     float64       `json:"tax_percent"`
	PaymentMethod  string        `json:"payment_method"`
	AmountPaid     *float64      `json:"amount_paid,omitempty"`
	CreatedBy      *uuid.UUID    `json:"-"`
}

func validPaymentMethod(m string) bool {
	for _, pm := range PaymentMethods {
		if pm == m {
			return true
		}
	}
	return false
}

// resolve turns line requests into priced bill items using current batch data.
func (s *Service) resolve(ctx context.Context, lines []LineRequest) ([]BillItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("at least one item is required")
	}
	today := dates.Of(s.now()).Time
	items := make([]BillItem, 0, len(lines))
	for i, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be positive", i+1)
		}
		b, err := s.stock.GetBatch(ctx, l.BatchID)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		if b.Expired(today) {
			return nil, fmt.Errorf("item %d: batch %s: %w", i+1, b.BatchNumber, ErrBatchExpired)
		}
		med, err := s.stock.GetMedication(ctx, b.MedicationID)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		price := b.SellingPrice
		if l.UnitPrice != nil {
			price = *l.UnitPrice
		}
		items = append(items, BillItem{
			MedicationID:   med.ID,
			BatchID:        b.ID,
			MedicationName: med.Name,
			BatchNumber:    b.BatchNumber,
			Quantity:       l.Quantity,
			UnitPrice:      price,
		})
	}
	return items, nil
}

// Quote prices a bill without storing it or touching stock.
func (s *Service) Quote(ctx context.Context, req CreateRequest) (Quote, error) {
	items, err := s.resolve(ctx, req.Items)
	if err != nil {
		return Quote{}, err
	}
	return CalculateQuote(items, req.DiscountType, req.DiscountValue, req.TaxPercent)
}

// CreateBill stores the bill and takes its items out of stock in one
// transaction. A short batch rolls the whole bill back.
func (s *Service) CreateBill(ctx context.Context, req CreateRequest) (*Bill, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = PaymentCash
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("payment_method must be one of %s", strings.Join(PaymentMethods, ", "))
	}
	if req.AmountPaid != nil && *req.AmountPaid < 0 {
		return nil, fmt.Errorf("amount_paid must not be negative")
	}
	items, err := s.resolve(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	q, err := CalculateQuote(items, req.DiscountType, req.DiscountValue, req.TaxPercent)
	if err != nil {
		return nil, err
	}

	paid := q.Total
	if req.AmountPaid != nil {
		paid = money.Round2(*req.AmountPaid)
	}
	bill := &Bill{
		PatientID:      req.PatientID,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		PrescriptionID: req.PrescriptionID,
		Subtotal:       q.Subtotal,
		DiscountType:   q.DiscountType,
		DiscountValue:  q.DiscountValue,
		DiscountAmount: q.DiscountAmount,
		TaxPercent:     q.TaxPercent,
		TaxAmount:      q.TaxAmount,
		Total:          q.Total,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  PaymentStatusFor(q.Total, paid),
		AmountPaid:     paid,
		CreatedBy:      req.CreatedBy,
		Items:          q.Items,
	}

	day := dates.Of(s.now()).Time
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		seq, err := s.repo.NextSequence(ctx, day)
		if err != nil {
			return fmt.Errorf("next bill number: %w", err)
		}
		bill.BillNumber = FormatBillNumber(day, seq)
		if err := s.repo.Create(ctx, bill); err != nil {
			return err
		}
		for i := range bill.Items {
			it := &bill.Items[i]
			it.BillID = bill.ID
			if err := s.repo.CreateItem(ctx, it); err != nil {
				return err
			}
			if _, err := s.stock.AdjustStock(ctx, it.BatchID, -it.Quantity); err != nil {
				return fmt.Errorf("%s batch %s: %w", it.MedicationName, it.BatchNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("bill_id", bill.ID.String()).Str("bill_number", bill.BillNumber).
		Float64("total", bill.Total).Int("items", len(bill.Items)).Msg("bill created")
	s.publish(ctx, "bill.created", bill)
	return bill, nil
}

func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListBills(ctx context.Context, f Filter, limit, offset int) ([]*Bill, int, error) {
	if f.PaymentStatus != "" && f.PaymentStatus != StatusPaid && f.PaymentStatus != StatusPending && f.PaymentStatus != StatusPartial {
		return nil, 0, fmt.Errorf("invalid payment_status %q", f.PaymentStatus)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// RecordPayment adds amount to what has been paid on a bill. method, when
// set, replaces the bill's payment method.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, amount float64, method string) (*Bill, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if method != "" && !validPaymentMethod(method) {
		return nil, fmt.Errorf("payment_method must be one of %s", strings.Join(PaymentMethods, ", "))
	}
	var bill *Bill
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		b.AmountPaid = money.Round2(b.AmountPaid + amount)
		b.PaymentStatus = PaymentStatusFor(b.Total, b.AmountPaid)
		if method != "" {
			b.PaymentMethod = method
		}
		if err := s.repo.UpdatePayment(ctx, b.ID, b.AmountPaid, b.PaymentStatus, b.PaymentMethod); err != nil {
			return err
		}
		bill = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "bill.payment_recorded", bill)
	return bill, nil
}

// DailyRevenue sums the bills created on day.
func (s *Service) DailyRevenue(ctx context.Context, day time.Time) (*Revenue, error) {
	d := dates.Of(day)
	rev, err := s.repo.Revenue(ctx, d.Time, d.AddDays(1).Time)
	if err != nil {
		return nil, err
	}
	rev.Date = d
	return rev, nil
}

// PaymentText is what the payment QR code of a bill encodes.
// The amount is the outstanding balance, or the total once paid.
func (s *Service) PaymentText(b *Bill) string {
	amount := b.Balance()
	if amount == 0 {
		amount = b.Total
	}
	return qrcode.PaymentPayload(qrcode.Payment{
		PayeeVPA:   s.issuer.UPIID,
		PayeeName:  s.issuer.Hospital,
		BillNumber: b.BillNumber,
		Amount:     amount,
		GSTIN:      s.issuer.GSTIN,
	})
}

// PaymentQR fetches the payment QR image of a bill.
func (s *Service) PaymentQR(ctx context.Context, id uuid.UUID) ([]byte, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.qr.Fetch(ctx, s.PaymentText(b))
}
