package staff

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/dates"
)

// Staff maps to the staff table.
type Staff struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	EmployeeCode   string     `db:"employee_code" json:"employee_code"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Role           string     `db:"role" json:"role"`
	Department     *string    `db:"department" json:"department,omitempty"`
	Specialization *string    `db:"specialization" json:"specialization,omitempty"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Email          string     `db:"email" json:"email"`
	Qualification  *string    `db:"qualification" json:"qualification,omitempty"`
	JoinedOn       dates.Date `db:"joined_on" json:"joined_on"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	PasswordHash   *string    `db:"password_hash" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (s *Staff) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

var codePrefix = map[string]string{
	auth.RoleAdmin:        "ADM",
	auth.RoleDoctor:       "DOC",
	auth.RoleNurse:        "NUR",
	auth.RolePharmacist:   "PHA",
	auth.RoleReceptionist: "REC",
}

// NewEmployeeCode returns a role-prefixed code such as DOC-3F2A9C.
func NewEmployeeCode(role string) string {
	prefix, ok := codePrefix[role]
	if !ok {
		prefix = "EMP"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + strings.ToUpper(id[:6])
}
