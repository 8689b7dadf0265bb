package prescription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/platform/db"
)

// -- Mock Repository --

type mockRepo struct {
	rx      map[uuid.UUID]*Prescription
	markErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{rx: make(map[uuid.UUID]*Prescription)}
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	p.PrescribedAt = time.Now()
	cp := *p
	cp.Items = nil
	m.rx[p.ID] = &cp
	return nil
}

func (m *mockRepo) CreateItem(_ context.Context, it *Item) error {
	p, ok := m.rx[it.PrescriptionID]
	if !ok {
		return ErrNotFound
	}
	it.ID = uuid.New()
	p.Items = append(p.Items, *it)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.rx[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepo) filter(keep func(*Prescription) bool) ([]*Prescription, int, error) {
	var out []*Prescription
	for _, p := range m.rx {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return m.filter(func(p *Prescription) bool { return p.PatientID == patientID })
}

func (m *mockRepo) ListPending(_ context.Context, limit, offset int) ([]*Prescription, int, error) {
	return m.filter(func(p *Prescription) bool { return p.Status == StatusPending })
}

func (m *mockRepo) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	p, ok := m.rx[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != StatusPending {
		return ErrNotPending
	}
	p.Status = status
	return nil
}

func (m *mockRepo) MarkDispensed(_ context.Context, id, billID uuid.UUID, at time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	p, ok := m.rx[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != StatusPending {
		return ErrNotPending
	}
	p.Status, p.BillID, p.DispensedAt = StatusDispensed, &billID, &at
	return nil
}

// -- Mock Stock and Biller --

type mockStock struct {
	meds  map[uuid.UUID]*pharmacy.Medication
	picks map[uuid.UUID][]pharmacy.Pick
}

func newMockStock() *mockStock {
	return &mockStock{meds: map[uuid.UUID]*pharmacy.Medication{}, picks: map[uuid.UUID][]pharmacy.Pick{}}
}

func (m *mockStock) addMed(name string, available int, price float64) *pharmacy.Medication {
	med := &pharmacy.Medication{ID: uuid.New(), Name: name}
	m.meds[med.ID] = med
	m.picks[med.ID] = []pharmacy.Pick{{BatchID: uuid.New(), BatchNumber: name[:1] + "1", Quantity: available, UnitPrice: price}}
	return med
}

// addBatch appends another batch after the existing ones, so it is picked later.
func (m *mockStock) addBatch(medID uuid.UUID, number string, available int, price float64) {
	m.picks[medID] = append(m.picks[medID], pharmacy.Pick{BatchID: uuid.New(), BatchNumber: number, Quantity: available, UnitPrice: price})
}

func (m *mockStock) GetMedication(_ context.Context, id uuid.UUID) (*pharmacy.Medication, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, pharmacy.ErrMedicationNotFound
	}
	return med, nil
}

func (m *mockStock) PickBatches(_ context.Context, medicationID uuid.UUID, qty int) ([]pharmacy.Pick, error) {
	var out []pharmacy.Pick
	remaining := qty
	for _, p := range m.picks[medicationID] {
		if remaining == 0 {
			break
		}
		take := p.Quantity
		if take > remaining {
			take = remaining
		}
		p.Quantity = take
		out = append(out, p)
		remaining -= take
	}
	if remaining > 0 {
		return nil, pharmacy.ErrInsufficientStock
	}
	return out, nil
}

type mockBiller struct {
	reqs      []billing.CreateRequest
	err       error
	announced int
}

// CreateBill defers its announcement to commit the same way billing.Service does.
func (m *mockBiller) CreateBill(ctx context.Context, req billing.CreateRequest) (*billing.Bill, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.reqs = append(m.reqs, req)
	db.AfterCommit(ctx, func() { m.announced++ })
	var total float64
	for _, l := range req.Items {
		total += float64(l.Quantity) * *l.UnitPrice
	}
	return &billing.Bill{ID: uuid.New(), BillNumber: "PH-20260310-0001", Total: total}, nil
}

// -- Fixture --

type fixture struct {
	svc    *Service
	repo   *mockRepo
	stock  *mockStock
	biller *mockBiller
}

func newFixture() *fixture {
	repo := newMockRepo()
	stock := newMockStock()
	biller := &mockBiller{}
	return &fixture{
		svc:    NewService(repo, stock, biller, db.NoTx{}, zerolog.Nop()),
		repo:   repo,
		stock:  stock,
		biller: biller,
	}
}

func (f *fixture) prescribe(t *testing.T, items ...Item) *Prescription {
	t.Helper()
	p := &Prescription{PatientID: uuid.New(), DoctorID: uuid.New(), Items: items}
	if err := f.svc.Create(context.Background(), p); err != nil {
		t.Fatalf("create prescription: %v", err)
	}
	return p
}

// -- Tests --

func TestCreate_DerivesQuantity(t *testing.T) {
	f := newFixture()
	med := f.stock.addMed("Amoxicillin", 100, 5)

	p := f.prescribe(t, Item{MedicationID: med.ID, Dosage: "500mg", Frequency: "tds", DurationDays: 5})
	if p.Status != StatusPending {
		t.Errorf("expected pending, got %s", p.Status)
	}
	it := p.Items[0]
	if it.Quantity != 15 || it.Frequency != "TDS" || it.MedicationName != "Amoxicillin" {
		t.Errorf("unexpected item %+v", it)
	}
	if len(f.repo.rx[p.ID].Items) != 1 {
		t.Error("expected item stored")
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	med := f.stock.addMed("Amoxicillin", 100, 5)
	base := func() *Prescription {
		return &Prescription{PatientID: uuid.New(), DoctorID: uuid.New(),
			Items: []Item{{MedicationID: med.ID, Dosage: "500mg", Frequency: "BD", DurationDays: 3}}}
	}

	cases := map[string]func(p *Prescription){
		"no patient":        func(p *Prescription) { p.PatientID = uuid.Nil },
		"no doctor":         func(p *Prescription) { p.DoctorID = uuid.Nil },
		"no items":          func(p *Prescription) { p.Items = nil },
		"bad frequency":     func(p *Prescription) { p.Items[0].Frequency = "sometimes" },
		"no dosage":         func(p *Prescription) { p.Items[0].Dosage = " " },
		"negative quantity": func(p *Prescription) { p.Items[0].Quantity = -1 },
		"unknown medicine":  func(p *Prescription) { p.Items[0].MedicationID = uuid.New() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := base()
			mutate(p)
			if err := f.svc.Create(context.Background(), p); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCancel(t *testing.T) {
	f := newFixture()
	med := f.stock.addMed("Cetirizine", 10, 2)
	p := f.prescribe(t, Item{MedicationID: med.ID, Dosage: "10mg", Frequency: "HS", Quantity: 5})

	if err := f.svc.Cancel(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.Cancel(context.Background(), p.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}
	if err := f.svc.Cancel(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDispense(t *testing.T) {
	f := newFixture()
	amox := f.stock.addMed("Amoxicillin", 100, 5)
	para := f.stock.addMed("Paracetamol", 100, 1.5)
	p := f.prescribe(t,
		Item{MedicationID: amox.ID, Dosage: "500mg", Frequency: "TDS", DurationDays: 5},
		Item{MedicationID: para.ID, Dosage: "650mg", Frequency: "SOS", Quantity: 6},
	)

	rx, bill, err := f.svc.Dispense(context.Background(), p.ID, DispenseRequest{PaymentMethod: billing.PaymentCash})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rx.Status != StatusDispensed || rx.BillID == nil || *rx.BillID != bill.ID {
		t.Errorf("unexpected prescription after dispense: %+v", rx)
	}
	if bill.Total != 84 {
		t.Errorf("expected total 84, got %v", bill.Total)
	}
	req := f.biller.reqs[0]
	if req.PrescriptionID == nil || *req.PrescriptionID != p.ID || *req.PatientID != p.PatientID {
		t.Error("expected bill linked to prescription and patient")
	}
	if len(req.Items) != 2 {
		t.Errorf("expected 2 bill lines, got %d", len(req.Items))
	}

	if _, _, err := f.svc.Dispense(context.Background(), p.ID, DispenseRequest{}); !errors.Is(err, ErrNotPending) {
		t.Errorf("expected ErrNotPending on second dispense, got %v", err)
	}
}

func TestDispense_InsufficientStock(t *testing.T) {
	f := newFixture()
	med := f.stock.addMed("Insulin", 2, 300)
	p := f.prescribe(t, Item{MedicationID: med.ID, Dosage: "10u", Frequency: "BD", DurationDays: 2})

	_, _, err := f.svc.Dispense(context.Background(), p.ID, DispenseRequest{})
	if !errors.Is(err, pharmacy.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if f.repo.rx[p.ID].Status != StatusPending {
		t.Error("expected prescription to stay pending")
	}
	if len(f.biller.reqs) != 0 {
		t.Error("expected no bill")
	}
}

func TestDispense_SameMedicationAcrossItems(t *testing.T) {
	f := newFixture()
	para := f.stock.addMed("Paracetamol", 6, 1.5)
	f.stock.addBatch(para.ID, "P2", 10, 2)
	p := f.prescribe(t,
		Item{MedicationID: para.ID, Dosage: "500mg", Frequency: "SOS", Quantity: 5},
		Item{MedicationID: para.ID, Dosage: "650mg", Frequency: "HS", Quantity: 5},
	)

	_, bill, err := f.svc.Dispense(context.Background(), p.ID, DispenseRequest{PaymentMethod: billing.PaymentCash})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := f.biller.reqs[0].Items
	if len(lines) != 2 {
		t.Fatalf("expected one line per batch, got %+v", lines)
	}
	if lines[0].Quantity != 6 || lines[1].Quantity != 4 {
		t.Errorf("expected 6 from the first batch and 4 from the second, got %d and %d", lines[0].Quantity, lines[1].Quantity)
	}
	if lines[0].BatchID == lines[1].BatchID {
		t.Error("expected two different batches")
	}
	if bill.Total != 17 {
		t.Errorf("expected total 17, got %v", bill.Total)
	}
}

func TestDispense_FailedMarkAnnouncesNoBill(t *testing.T) {
	f := newFixture()
	med := f.stock.addMed("Amoxicillin", 100, 5)
	p := f.prescribe(t, Item{MedicationID: med.ID, Dosage: "500mg", Frequency: "TDS", DurationDays: 5})
	f.repo.markErr = errors.New("connection reset")

	if _, _, err := f.svc.Dispense(context.Background(), p.ID, DispenseRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.biller.reqs) != 1 {
		t.Fatalf("expected the bill to have been attempted, got %d", len(f.biller.reqs))
	}
	if f.biller.announced != 0 {
		t.Errorf("expected no bill announced for a rolled back dispense, got %d", f.biller.announced)
	}

	f.repo.markErr = nil
	if _, _, err := f.svc.Dispense(context.Background(), p.ID, DispenseRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.biller.announced != 1 {
		t.Errorf("expected one bill announced after commit, got %d", f.biller.announced)
	}
}

func TestCountPending(t *testing.T) {
	f := newFixture()
	med := f.stock.addMed("Zinc", 10, 1)
	f.prescribe(t, Item{MedicationID: med.ID, Dosage: "1 tab", Frequency: "OD", Quantity: 1})
	p := f.prescribe(t, Item{MedicationID: med.ID, Dosage: "1 tab", Frequency: "OD", Quantity: 1})
	f.svc.Cancel(context.Background(), p.ID)

	n, err := f.svc.CountPending(context.Background())
	if err != nil || n != 1 {
		t.Errorf("expected 1 pending, got %d (%v)", n, err)
	}
}
