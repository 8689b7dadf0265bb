package patient

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repository --

type mockRepo struct {
	patients map[uuid.UUID]*Patient
	seq      int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByUHID(_ context.Context, uhid string) (*Patient, error) {
	for _, p := range m.patients {
		if p.UHID == uhid {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.patients[id]; !ok {
		return ErrNotFound
	}
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if g, ok := params["gender"]; ok && p.Gender != g {
			continue
		}
		if q, ok := params["q"]; ok && !strings.Contains(strings.ToLower(p.FullName()+p.UHID+p.Phone), strings.ToLower(q)) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockRepo) NextSequence(_ context.Context) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockRepo) CountCreatedSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	for _, p := range m.patients {
		if !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo, "UH")
	svc.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestRegister_AssignsUHID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first := &Patient{FirstName: "Asha", Phone: "9800000001"}
	if err := svc.Register(ctx, first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	second := &Patient{FirstName: "Ravi", Phone: "9800000002"}
	if err := svc.Register(ctx, second); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if first.UHID != "UH-2026-000001" {
		t.Errorf("first UHID = %q", first.UHID)
	}
	if second.UHID != "UH-2026-000002" {
		t.Errorf("second UHID = %q", second.UHID)
	}
	if first.Gender != GenderOther {
		t.Errorf("expected default gender other, got %q", first.Gender)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService()
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	negative := -3

	tests := []struct {
		name string
		p    Patient
		want string
	}{
		{"missing first name", Patient{Phone: "1"}, "first_name is required"},
		{"blank first name", Patient{FirstName: "  ", Phone: "1"}, "first_name is required"},
		{"missing phone", Patient{FirstName: "Asha"}, "phone is required"},
		{"bad gender", Patient{FirstName: "Asha", Phone: "1", Gender: "unknown"}, "invalid gender"},
		{"future dob", Patient{FirstName: "Asha", Phone: "1", DateOfBirth: &future}, "future"},
		{"negative age", Patient{FirstName: "Asha", Phone: "1", Age: &negative}, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			err := svc.Register(context.Background(), &p)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRegister_GenderIsNormalized(t *testing.T) {
	svc, _ := newTestService()
	p := &Patient{FirstName: "Meera", Phone: "1", Gender: " Female "}
	if err := svc.Register(context.Background(), p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.Gender != GenderFemale {
		t.Errorf("gender = %q", p.Gender)
	}
}

func TestAgeAt(t *testing.T) {
	now := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		dob  time.Time
		want int
	}{
		{time.Date(1990, 10, 14, 0, 0, 0, 0, time.UTC), 36},
		{time.Date(1990, 10, 15, 0, 0, 0, 0, time.UTC), 35},
		{time.Date(1990, 11, 1, 0, 0, 0, 0, time.UTC), 35},
		{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		if got := AgeAt(tt.dob, now); got != tt.want {
			t.Errorf("AgeAt(%s) = %d, want %d", tt.dob.Format("2006-01-02"), got, tt.want)
		}
	}
}

func TestGet_RecomputesAge(t *testing.T) {
	svc, repo := newTestService()
	dob := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	stale := 1
	p := &Patient{FirstName: "Kiran", Phone: "1", DateOfBirth: &dob, Age: &stale}
	repo.Create(context.Background(), p)

	got, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Age == nil || *got.Age != 26 {
		t.Errorf("expected age 26, got %v", got.Age)
	}
}

func TestUpdate_KeepsUHID(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	p := &Patient{FirstName: "Asha", Phone: "1"}
	svc.Register(ctx, p)

	upd := &Patient{ID: p.ID, UHID: "HACKED", FirstName: "Asha", LastName: "Rao", Phone: "2"}
	if err := svc.Update(ctx, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	stored := repo.patients[p.ID]
	if stored.UHID != p.UHID {
		t.Errorf("UHID changed to %q", stored.UHID)
	}
	if stored.LastName != "Rao" || stored.Phone != "2" {
		t.Errorf("fields not updated: %+v", stored)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService()
	err := svc.Update(context.Background(), &Patient{ID: uuid.New(), FirstName: "x", Phone: "1"})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearch_LowercasesGender(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.Register(ctx, &Patient{FirstName: "A", Phone: "1", Gender: "male"})
	svc.Register(ctx, &Patient{FirstName: "B", Phone: "2", Gender: "female"})

	items, total, err := svc.Search(ctx, map[string]string{"gender": "MALE"}, 20, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || items[0].FirstName != "A" {
		t.Errorf("unexpected results: total=%d", total)
	}
}

func TestFormatUHID(t *testing.T) {
	if got := FormatUHID("CH", 2026, 42); got != "CH-2026-000042" {
		t.Errorf("FormatUHID() = %q", got)
	}
}
