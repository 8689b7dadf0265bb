package bed

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/money"
)

const (
	StatusAvailable   = "available"
	StatusOccupied    = "occupied"
	StatusMaintenance = "maintenance"
	StatusReserved    = "reserved"

	AllocationActive      = "active"
	AllocationDischarged  = "discharged"
	AllocationTransferred = "transferred"
)

var (
	BedTypes    = []string{"general", "icu", "private", "semi-private", "emergency"}
	BedStatuses = []string{StatusAvailable, StatusOccupied, StatusMaintenance, StatusReserved}
)

// Bed maps to the beds table.
type Bed struct {
	ID         uuid.UUID `db:"id" json:"id"`
	BedNumber  string    `db:"bed_number" json:"bed_number"`
	Ward       string    `db:"ward" json:"ward"`
	RoomNumber *string   `db:"room_number" json:"room_number,omitempty"`
	BedType    string    `db:"bed_type" json:"bed_type"`
	Status     string    `db:"status" json:"status"`
	DailyRate  float64   `db:"daily_rate" json:"daily_rate"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Allocation maps to the bed_allocations table. PatientName and PatientUHID
// are only filled by list queries that join patients.
type Allocation struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	BedID             uuid.UUID  `db:"bed_id" json:"bed_id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	AdmittedAt        time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt      *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	ExpectedDischarge *time.Time `db:"expected_discharge" json:"expected_discharge,omitempty"`
	Reason            *string    `db:"reason" json:"reason,omitempty"`
	Status            string     `db:"status" json:"status"`
	AllocatedBy       *uuid.UUID `db:"allocated_by" json:"allocated_by,omitempty"`
	PatientName       string     `json:"patient_name,omitempty"`
	PatientUHID       string     `json:"patient_uhid,omitempty"`
}

// View is a bed joined with its active allocation, as shown on the ward board.
type View struct {
	Bed
	StoredStatus string      `json:"stored_status"`
	Allocation   *Allocation `json:"allocation,omitempty"`
}

// correctStatus patches the displayed status of a bed whose stored status
// says occupied although nobody is allocated to it.
func correctStatus(stored string, hasActive bool) string {
	if stored == StatusOccupied && !hasActive {
		return StatusAvailable
	}
	return stored
}

// NewView builds the display row for b. The stored bed is not modified.
func NewView(b *Bed, active *Allocation) View {
	v := View{Bed: *b, StoredStatus: b.Status, Allocation: active}
	v.Status = correctStatus(b.Status, active != nil)
	return v
}

// WardOccupancy counts displayed statuses per ward.
type WardOccupancy struct {
	Ward             string  `json:"ward"`
	Total            int     `json:"total"`
	Available        int     `json:"available"`
	Occupied         int     `json:"occupied"`
	Maintenance      int     `json:"maintenance"`
	Reserved         int     `json:"reserved"`
	OccupancyPercent float64 `json:"occupancy_percent"`
}

func (w *WardOccupancy) add(status string) {
	w.Total++
	switch status {
	case StatusAvailable:
		w.Available++
	case StatusOccupied:
		w.Occupied++
	case StatusMaintenance:
		w.Maintenance++
	case StatusReserved:
		w.Reserved++
	}
}

func (w *WardOccupancy) finish() {
	if w.Total > 0 {
		w.OccupancyPercent = money.Round2(float64(w.Occupied) / float64(w.Total) * 100)
	}
}

type Occupancy struct {
	Overall WardOccupancy   `json:"overall"`
	Wards   []WardOccupancy `json:"wards"`
}

// Summarize computes occupancy from display rows, wards in first-seen order.
func Summarize(views []View) Occupancy {
	occ := Occupancy{Overall: WardOccupancy{Ward: "all"}, Wards: []WardOccupancy{}}
	index := map[string]int{}
	for _, v := range views {
		i, ok := index[v.Ward]
		if !ok {
			i = len(occ.Wards)
			index[v.Ward] = i
			occ.Wards = append(occ.Wards, WardOccupancy{Ward: v.Ward})
		}
		occ.Wards[i].add(v.Status)
		occ.Overall.add(v.Status)
	}
	for i := range occ.Wards {
		occ.Wards[i].finish()
	}
	occ.Overall.finish()
	return occ
}

type StayCharge struct {
	AllocationID uuid.UUID `json:"allocation_id"`
	Days         int       `json:"days"`
	DailyRate    float64   `json:"daily_rate"`
	Amount       float64   `json:"amount"`
}

// ComputeStayCharge bills every started 24h period, minimum one day. Open
// allocations are charged up to now.
func ComputeStayCharge(a *Allocation, b *Bed, now time.Time) StayCharge {
	end := now
	if a.DischargedAt != nil {
		end = *a.DischargedAt
	}
	days := int(math.Ceil(end.Sub(a.AdmittedAt).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return StayCharge{
		AllocationID: a.ID,
		Days:         days,
		DailyRate:    b.DailyRate,
		Amount:       money.Round2(float64(days) * b.DailyRate),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
