package bed

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/websocket"
)

// -- Mock Bed Repository --

type mockBedRepo struct {
	beds map[uuid.UUID]*Bed
}

func newMockBedRepo() *mockBedRepo {
	return &mockBedRepo{beds: make(map[uuid.UUID]*Bed)}
}

func (m *mockBedRepo) Create(_ context.Context, b *Bed) error {
	b.ID = uuid.New()
	m.beds[b.ID] = b
	return nil
}

func (m *mockBedRepo) GetByID(_ context.Context, id uuid.UUID) (*Bed, error) {
	b, ok := m.beds[id]
	if !ok {
		return nil, ErrBedNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBedRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return m.GetByID(ctx, id)
}

func (m *mockBedRepo) Update(_ context.Context, b *Bed) error {
	if _, ok := m.beds[b.ID]; !ok {
		return ErrBedNotFound
	}
	m.beds[b.ID] = b
	return nil
}

func (m *mockBedRepo) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	b, ok := m.beds[id]
	if !ok {
		return ErrBedNotFound
	}
	b.Status = status
	return nil
}

func (m *mockBedRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.beds[id]; !ok {
		return ErrBedNotFound
	}
	delete(m.beds, id)
	return nil
}

func (m *mockBedRepo) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Bed, int, error) {
	all, _ := m.ListAll(ctx, params)
	return all, len(all), nil
}

func (m *mockBedRepo) ListAll(_ context.Context, params map[string]string) ([]*Bed, error) {
	var out []*Bed
	for _, b := range m.beds {
		if w, ok := params["ward"]; ok && b.Ward != w {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// -- Mock Allocation Repository --

type mockAllocRepo struct {
	allocs map[uuid.UUID]*Allocation
}

func newMockAllocRepo() *mockAllocRepo {
	return &mockAllocRepo{allocs: make(map[uuid.UUID]*Allocation)}
}

func (m *mockAllocRepo) Create(_ context.Context, a *Allocation) error {
	a.ID = uuid.New()
	cp := *a
	m.allocs[a.ID] = &cp
	return nil
}

func (m *mockAllocRepo) GetByID(_ context.Context, id uuid.UUID) (*Allocation, error) {
	a, ok := m.allocs[id]
	if !ok {
		return nil, ErrAllocationNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAllocRepo) GetActiveByBed(_ context.Context, bedID uuid.UUID) (*Allocation, error) {
	for _, a := range m.allocs {
		if a.BedID == bedID && a.Status == AllocationActive {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockAllocRepo) GetActiveByPatient(_ context.Context, patientID uuid.UUID) (*Allocation, error) {
	for _, a := range m.allocs {
		if a.PatientID == patientID && a.Status == AllocationActive {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockAllocRepo) Close(_ context.Context, id uuid.UUID, status string, at time.Time) error {
	a, ok := m.allocs[id]
	if !ok || a.Status != AllocationActive {
		return ErrAllocationClosed
	}
	a.Status = status
	a.DischargedAt = &at
	return nil
}

func (m *mockAllocRepo) ListActive(_ context.Context) ([]*Allocation, error) {
	var out []*Allocation
	for _, a := range m.allocs {
		if a.Status == AllocationActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAllocRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Allocation, error) {
	var out []*Allocation
	for _, a := range m.allocs {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fixture struct {
	svc    *Service
	beds   *mockBedRepo
	allocs *mockAllocRepo
}

func newFixture() *fixture {
	beds := newMockBedRepo()
	allocs := newMockAllocRepo()
	svc := NewService(beds, allocs, db.NoTx{}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, beds: beds, allocs: allocs}
}

func (f *fixture) addBed(t *testing.T, ward, number, status string) *Bed {
	t.Helper()
	b := &Bed{Ward: ward, BedNumber: number, Status: status, DailyRate: 1000}
	if err := f.svc.CreateBed(context.Background(), b); err != nil {
		t.Fatalf("CreateBed: %v", err)
	}
	return b
}

func TestCreateBed_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cases := []Bed{
		{Ward: "A"},
		{BedNumber: "1"},
		{BedNumber: "1", Ward: "A", BedType: "suite"},
		{BedNumber: "1", Ward: "A", Status: "broken"},
		{BedNumber: "1", Ward: "A", DailyRate: -1},
	}
	for i, b := range cases {
		b := b
		if err := f.svc.CreateBed(ctx, &b); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}

	b := &Bed{BedNumber: " 12 ", Ward: "ICU"}
	if err := f.svc.CreateBed(ctx, b); err != nil {
		t.Fatalf("CreateBed: %v", err)
	}
	if b.BedType != "general" || b.Status != StatusAvailable || b.BedNumber != "12" {
		t.Errorf("defaults not applied: %+v", b)
	}
}

func TestAllocate(t *testing.T) {
	f := newFixture()
	b := f.addBed(t, "A", "1", StatusAvailable)
	patient := uuid.New()

	a, err := f.svc.Allocate(context.Background(), AllocateRequest{BedID: b.ID, PatientID: patient})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a.Status != AllocationActive || a.BedID != b.ID {
		t.Errorf("unexpected allocation: %+v", a)
	}
	if f.beds.beds[b.ID].Status != StatusOccupied {
		t.Errorf("bed status = %q, want occupied", f.beds.beds[b.ID].Status)
	}
}

func TestAllocate_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	free := f.addBed(t, "A", "1", StatusAvailable)
	other := f.addBed(t, "A", "2", StatusAvailable)
	broken := f.addBed(t, "A", "3", StatusMaintenance)
	patient := uuid.New()

	if _, err := f.svc.Allocate(ctx, AllocateRequest{BedID: free.ID, PatientID: patient}); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	tests := []struct {
		name string
		req  AllocateRequest
		want error
	}{
		{"occupied bed", AllocateRequest{BedID: free.ID, PatientID: uuid.New()}, ErrBedOccupied},
		{"maintenance", AllocateRequest{BedID: broken.ID, PatientID: uuid.New()}, ErrBedUnavailable},
		{"patient already admitted", AllocateRequest{BedID: other.ID, PatientID: patient}, ErrPatientAdmitted},
		{"unknown bed", AllocateRequest{BedID: uuid.New(), PatientID: uuid.New()}, ErrBedNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Allocate(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := f.svc.Allocate(ctx, AllocateRequest{BedID: free.ID}); err == nil {
		t.Error("expected error without patient_id")
	}
}

func TestAllocate_StaleOccupiedBedIsAllocatable(t *testing.T) {
	f := newFixture()
	b := f.addBed(t, "A", "1", StatusOccupied)
	if _, err := f.svc.Allocate(context.Background(), AllocateRequest{BedID: b.ID, PatientID: uuid.New()}); err != nil {
		t.Fatalf("expected allocation on stale occupied bed, got %v", err)
	}
}

func TestDischarge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.addBed(t, "A", "1", StatusAvailable)
	a, _ := f.svc.Allocate(ctx, AllocateRequest{BedID: b.ID, PatientID: uuid.New()})

	out, err := f.svc.Discharge(ctx, a.ID)
	if err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	if out.Status != AllocationDischarged || out.DischargedAt == nil {
		t.Errorf("unexpected discharge result: %+v", out)
	}
	if f.beds.beds[b.ID].Status != StatusAvailable {
		t.Errorf("bed not released: %q", f.beds.beds[b.ID].Status)
	}

	if _, err := f.svc.Discharge(ctx, a.ID); !errors.Is(err, ErrAllocationClosed) {
		t.Errorf("second discharge: expected ErrAllocationClosed, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	from := f.addBed(t, "A", "1", StatusAvailable)
	to := f.addBed(t, "B", "7", StatusAvailable)
	patient := uuid.New()
	a, _ := f.svc.Allocate(ctx, AllocateRequest{BedID: from.ID, PatientID: patient})

	moved, err := f.svc.Transfer(ctx, a.ID, to.ID, nil)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if moved.BedID != to.ID || moved.PatientID != patient {
		t.Errorf("unexpected new allocation: %+v", moved)
	}
	if f.allocs.allocs[a.ID].Status != AllocationTransferred {
		t.Errorf("old allocation status = %q", f.allocs.allocs[a.ID].Status)
	}
	if f.beds.beds[from.ID].Status != StatusAvailable || f.beds.beds[to.ID].Status != StatusOccupied {
		t.Errorf("bed statuses: from=%q to=%q", f.beds.beds[from.ID].Status, f.beds.beds[to.ID].Status)
	}

	if _, err := f.svc.Transfer(ctx, moved.ID, to.ID, nil); err == nil {
		t.Error("expected error transferring into the same bed")
	}
}

func TestDeleteBed_Occupied(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.addBed(t, "A", "1", StatusAvailable)
	f.svc.Allocate(ctx, AllocateRequest{BedID: b.ID, PatientID: uuid.New()})

	if err := f.svc.DeleteBed(ctx, b.ID); !errors.Is(err, ErrBedOccupied) {
		t.Errorf("expected ErrBedOccupied, got %v", err)
	}
}

func TestListBedViews_CorrectsStaleStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	stale := f.addBed(t, "A", "1", StatusOccupied)
	occupied := f.addBed(t, "A", "2", StatusAvailable)
	f.svc.Allocate(ctx, AllocateRequest{BedID: occupied.ID, PatientID: uuid.New()})

	views, err := f.svc.ListBedViews(ctx, nil)
	if err != nil {
		t.Fatalf("ListBedViews: %v", err)
	}
	got := map[uuid.UUID]View{}
	for _, v := range views {
		got[v.ID] = v
	}
	if got[stale.ID].Status != StatusAvailable || got[stale.ID].Allocation != nil {
		t.Errorf("stale bed view: %+v", got[stale.ID])
	}
	if got[occupied.ID].Status != StatusOccupied || got[occupied.ID].Allocation == nil {
		t.Errorf("occupied bed view: %+v", got[occupied.ID])
	}
	if f.beds.beds[stale.ID].Status != StatusOccupied {
		t.Error("stored status must not be rewritten")
	}
}

func TestStayCharge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.addBed(t, "A", "1", StatusAvailable)
	a, _ := f.svc.Allocate(ctx, AllocateRequest{BedID: b.ID, PatientID: uuid.New()})

	f.svc.now = func() time.Time { return a.AdmittedAt.Add(30 * time.Hour) }
	charge, err := f.svc.StayCharge(ctx, a.ID)
	if err != nil {
		t.Fatalf("StayCharge: %v", err)
	}
	if charge.Days != 2 || charge.Amount != 2000 {
		t.Errorf("unexpected charge: %+v", charge)
	}
}

type recordingPublisher struct {
	events []websocket.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) types() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestBedEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture()
	pub := &recordingPublisher{}
	f.svc.SetPublisher(pub)
	ctx := context.Background()
	from := f.addBed(t, "A", "1", StatusAvailable)
	to := f.addBed(t, "A", "2", StatusAvailable)

	a, err := f.svc.Allocate(ctx, AllocateRequest{BedID: from.ID, PatientID: uuid.New()})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := f.svc.Allocate(ctx, AllocateRequest{BedID: from.ID, PatientID: uuid.New()}); !errors.Is(err, ErrBedOccupied) {
		t.Fatalf("expected ErrBedOccupied, got %v", err)
	}
	moved, err := f.svc.Transfer(ctx, a.ID, to.ID, nil)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := f.svc.Discharge(ctx, moved.ID); err != nil {
		t.Fatalf("Discharge: %v", err)
	}

	want := []string{"bed.allocated", "bed.transferred", "bed.discharged"}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if pub.events[1].ResourceID != to.ID.String() || pub.events[1].Topic != websocket.TopicBeds {
		t.Errorf("transfer event should point at the new bed: %+v", pub.events[1])
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, websocket.Event) error {
	return errors.New("hub closed")
}

func TestBedEventPublishFailureIsLogged(t *testing.T) {
	f := newFixture()
	var buf bytes.Buffer
	f.svc.logger = zerolog.New(&buf)
	f.svc.SetPublisher(failingPublisher{})
	b := f.addBed(t, "A", "1", StatusAvailable)

	if _, err := f.svc.Allocate(context.Background(), AllocateRequest{BedID: b.ID, PatientID: uuid.New()}); err != nil {
		t.Fatalf("Allocate should not fail on a publish error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "hub closed") {
		t.Errorf("expected a warning with the publish error, got %q", out)
	}
	if !strings.Contains(out, b.ID.String()) {
		t.Errorf("expected bed id in the warning, got %q", out)
	}
}
