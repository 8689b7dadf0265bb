package staff

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
)

var (
	ErrNotFound           = errors.New("staff member not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const MinPasswordLength = 8

type Service struct {
	repo Repository
	cost int
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

func normalize(s *Staff) error {
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Role = strings.ToLower(strings.TrimSpace(s.Role))
	s.EmployeeCode = strings.ToUpper(strings.TrimSpace(s.EmployeeCode))

	if s.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	if s.Email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(s.Email); err != nil {
		return fmt.Errorf("email is invalid")
	}
	if !auth.ValidRole(s.Role) {
		return fmt.Errorf("role must be one of %s", strings.Join(auth.Roles, ", "))
	}
	if s.EmployeeCode == "" {
		s.EmployeeCode = NewEmployeeCode(s.Role)
	}
	return nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Create adds a staff member. password is optional; without one the member
// cannot log in until SetPassword is called.
func (s *Service) Create(ctx context.Context, st *Staff, password string) error {
	if err := normalize(st); err != nil {
		return err
	}
	if password != "" {
		h, err := s.hash(password)
		if err != nil {
			return err
		}
		st.PasswordHash = &h
	}
	if err := s.repo.Create(ctx, st); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, st *Staff) error {
	existing, err := s.repo.GetByID(ctx, st.ID)
	if err != nil {
		return err
	}
	if st.EmployeeCode == "" {
		st.EmployeeCode = existing.EmployeeCode
	}
	if err := normalize(st); err != nil {
		return err
	}
	st.PasswordHash = existing.PasswordHash
	st.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, st); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	h, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.repo.SetPasswordHash(ctx, id, h)
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, false)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Staff, int, error) {
	if role, ok := params["role"]; ok && !auth.ValidRole(strings.ToLower(role)) {
		return nil, 0, fmt.Errorf("unknown role %q", role)
	}
	return s.repo.Search(ctx, params, limit, offset)
}

// ListDoctors returns active doctors, optionally within one department.
func (s *Service) ListDoctors(ctx context.Context, department string, limit, offset int) ([]*Staff, int, error) {
	params := map[string]string{"role": auth.RoleDoctor, "active": "true"}
	if department != "" {
		params["department"] = department
	}
	return s.repo.Search(ctx, params, limit, offset)
}

// Authenticate returns the active staff member with this email and password.
// Every failure reports ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Staff, error) {
	st, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !st.IsActive || st.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*st.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return st, nil
}
