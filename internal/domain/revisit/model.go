package revisit

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/dates"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusMissed    = "missed"
)

// Revisit records a patient visit. Status tracks the follow-up: a visit
// with a follow_up_date stays scheduled until the patient returns or the
// date passes.
type Revisit struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID     *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	VisitDate    dates.Date `db:"visit_date" json:"visit_date"`
	Reason       *string    `db:"reason" json:"reason,omitempty"`
	Department   *string    `db:"department" json:"department,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	FollowUpDate dates.Date `db:"follow_up_date" json:"follow_up_date"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

type Stats struct {
	From             dates.Date    `json:"from"`
	To               dates.Date    `json:"to"`
	Total            int           `json:"total"`
	Completed        int           `json:"completed"`
	Missed           int           `json:"missed"`
	Scheduled        int           `json:"scheduled"`
	DistinctPatients int           `json:"distinct_patients"`
	TopReasons       []ReasonCount `json:"top_reasons"`
}

const topReasons = 5

// Summarize aggregates visits. Reasons are grouped case-insensitively and
// ties are ordered alphabetically.
func Summarize(visits []*Revisit) Stats {
	st := Stats{TopReasons: []ReasonCount{}}
	patients := make(map[uuid.UUID]struct{})
	reasons := make(map[string]int)
	for _, v := range visits {
		st.Total++
		switch v.Status {
		case StatusCompleted:
			st.Completed++
		case StatusMissed:
			st.Missed++
		case StatusScheduled:
			st.Scheduled++
		}
		patients[v.PatientID] = struct{}{}
		if v.Reason != nil {
			if r := strings.ToLower(strings.TrimSpace(*v.Reason)); r != "" {
				reasons[r]++
			}
		}
	}
	st.DistinctPatients = len(patients)
	for r, n := range reasons {
		st.TopReasons = append(st.TopReasons, ReasonCount{Reason: r, Count: n})
	}
	sort.Slice(st.TopReasons, func(i, j int) bool {
		a, b := st.TopReasons[i], st.TopReasons[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})
	if len(st.TopReasons) > topReasons {
		st.TopReasons = st.TopReasons[:topReasons]
	}
	return st
}
