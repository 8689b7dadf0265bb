package patient

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Patient maps to the patients table.
type Patient struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	UHID             string     `db:"uhid" json:"uhid"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Gender           string     `db:"gender" json:"gender"`
	DateOfBirth      *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Age              *int       `db:"age" json:"age,omitempty"`
	BloodGroup       *string    `db:"blood_group" json:"blood_group,omitempty"`
	Phone            string     `db:"phone" json:"phone"`
	Email            *string    `db:"email" json:"email,omitempty"`
	Address          *string    `db:"address" json:"address,omitempty"`
	EmergencyContact *string    `db:"emergency_contact" json:"emergency_contact,omitempty"`
	Allergies        *string    `db:"allergies" json:"allergies,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// AgeAt returns whole years between dob and now.
func AgeAt(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// FormatUHID renders a hospital id such as UH-2026-000042.
func FormatUHID(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}
