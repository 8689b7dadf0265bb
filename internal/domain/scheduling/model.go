package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultSlotMinutes = 15

// DoctorSchedule is a weekly outpatient block for one doctor. DayOfWeek
// follows time.Weekday (0 is Sunday).
type DoctorSchedule struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DayOfWeek   int       `db:"day_of_week" json:"day_of_week"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	SlotMinutes int       `db:"slot_minutes" json:"slot_minutes"`
	Room        *string   `db:"room" json:"room,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Slot is one bookable interval on a concrete date.
type Slot struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Room       *string   `json:"room,omitempty"`
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return h*60 + m, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// bounds returns the schedule's window in minutes. Times are validated on
// write, so parse errors are reported as an empty window.
func (s *DoctorSchedule) bounds() (int, int) {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return 0, 0
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return 0, 0
	}
	return start, end
}

// Overlaps reports whether both schedules fall on the same weekday with
// intersecting windows. Touching windows (09:00-12:00, 12:00-14:00) do not
// overlap.
func (s *DoctorSchedule) Overlaps(o *DoctorSchedule) bool {
	if s.DayOfWeek != o.DayOfWeek {
		return false
	}
	as, ae := s.bounds()
	bs, be := o.bounds()
	return as < be && bs < ae
}

// Covers reports whether at falls inside this schedule.
func (s *DoctorSchedule) Covers(at time.Time) bool {
	if int(at.Weekday()) != s.DayOfWeek {
		return false
	}
	start, end := s.bounds()
	m := minuteOfDay(at)
	return m >= start && m < end
}

// Slots splits the window into SlotMinutes intervals. A trailing remainder
// shorter than one slot is dropped.
func (s *DoctorSchedule) Slots() []Slot {
	start, end := s.bounds()
	step := s.SlotMinutes
	if step <= 0 {
		step = DefaultSlotMinutes
	}
	var out []Slot
	for t := start; t+step <= end; t += step {
		out = append(out, Slot{ScheduleID: s.ID, Start: FormatClock(t), End: FormatClock(t + step), Room: s.Room})
	}
	return out
}
