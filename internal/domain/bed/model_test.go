package bed

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCorrectStatus(t *testing.T) {
	tests := []struct {
		stored    string
		hasActive bool
		want      string
	}{
		{StatusOccupied, false, StatusAvailable},
		{StatusOccupied, true, StatusOccupied},
		{StatusAvailable, false, StatusAvailable},
		{StatusMaintenance, false, StatusMaintenance},
		{StatusReserved, false, StatusReserved},
		// an allocation on an "available" bed is shown as stored
		{StatusAvailable, true, StatusAvailable},
	}
	for _, tt := range tests {
		if got := correctStatus(tt.stored, tt.hasActive); got != tt.want {
			t.Errorf("correctStatus(%q, %v) = %q, want %q", tt.stored, tt.hasActive, got, tt.want)
		}
	}
}

func TestNewView_DoesNotModifyBed(t *testing.T) {
	b := &Bed{ID: uuid.New(), Ward: "A", Status: StatusOccupied}
	v := NewView(b, nil)
	if v.Status != StatusAvailable {
		t.Errorf("view status = %q, want available", v.Status)
	}
	if v.StoredStatus != StatusOccupied {
		t.Errorf("stored status = %q", v.StoredStatus)
	}
	if b.Status != StatusOccupied {
		t.Errorf("bed was modified: %q", b.Status)
	}
}

func TestSummarize(t *testing.T) {
	alloc := &Allocation{ID: uuid.New()}
	views := []View{
		NewView(&Bed{Ward: "ICU", Status: StatusOccupied}, alloc),
		NewView(&Bed{Ward: "ICU", Status: StatusOccupied}, nil),
		NewView(&Bed{Ward: "ICU", Status: StatusMaintenance}, nil),
		NewView(&Bed{Ward: "General", Status: StatusReserved}, nil),
	}
	occ := Summarize(views)

	if len(occ.Wards) != 2 || occ.Wards[0].Ward != "ICU" {
		t.Fatalf("unexpected wards: %+v", occ.Wards)
	}
	icu := occ.Wards[0]
	if icu.Total != 3 || icu.Occupied != 1 || icu.Available != 1 || icu.Maintenance != 1 {
		t.Errorf("unexpected ICU counts: %+v", icu)
	}
	if icu.OccupancyPercent != 33.33 {
		t.Errorf("ICU occupancy = %v, want 33.33", icu.OccupancyPercent)
	}
	if occ.Overall.Total != 4 || occ.Overall.Reserved != 1 || occ.Overall.OccupancyPercent != 25 {
		t.Errorf("unexpected overall: %+v", occ.Overall)
	}
}

func TestSummarize_Empty(t *testing.T) {
	occ := Summarize(nil)
	if occ.Overall.Total != 0 || occ.Overall.OccupancyPercent != 0 || occ.Wards == nil {
		t.Errorf("unexpected empty occupancy: %+v", occ)
	}
}

func TestComputeStayCharge(t *testing.T) {
	admitted := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	b := &Bed{DailyRate: 1500.50}

	tests := []struct {
		name string
		end  time.Time
		days int
	}{
		{"same hour", admitted, 1},
		{"two hours", admitted.Add(2 * time.Hour), 1},
		{"exactly one day", admitted.Add(24 * time.Hour), 1},
		{"one day and a minute", admitted.Add(24*time.Hour + time.Minute), 2},
		{"three days", admitted.Add(72 * time.Hour), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := tt.end
			a := &Allocation{AdmittedAt: admitted, DischargedAt: &end}
			got := ComputeStayCharge(a, b, time.Now())
			if got.Days != tt.days {
				t.Errorf("days = %d, want %d", got.Days, tt.days)
			}
			if want := float64(tt.days) * 1500.50; got.Amount != want {
				t.Errorf("amount = %v, want %v", got.Amount, want)
			}
		})
	}
}

func TestComputeStayCharge_OpenAllocationUsesNow(t *testing.T) {
	admitted := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	a := &Allocation{AdmittedAt: admitted}
	got := ComputeStayCharge(a, &Bed{DailyRate: 100}, admitted.Add(50*time.Hour))
	if got.Days != 3 || got.Amount != 300 {
		t.Errorf("unexpected charge: %+v", got)
	}
}
