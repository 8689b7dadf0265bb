package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

type Service struct {
	repo   Repository
	prefix string
	now    func() time.Time
}

func NewService(repo Repository, uhidPrefix string) *Service {
	if uhidPrefix == "" {
		uhidPrefix = "UH"
	}
	return &Service{repo: repo, prefix: uhidPrefix, now: time.Now}
}

func validGender(g string) bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

func (s *Service) normalize(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	if p.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	if p.Gender == "" {
		p.Gender = GenderOther
	}
	if !validGender(p.Gender) {
		return fmt.Errorf("invalid gender: %s", p.Gender)
	}
	now := s.now()
	if p.DateOfBirth != nil {
		if p.DateOfBirth.After(now) {
			return fmt.Errorf("date_of_birth is in the future")
		}
		age := AgeAt(*p.DateOfBirth, now)
		p.Age = &age
	} else if p.Age != nil && *p.Age < 0 {
		return fmt.Errorf("age must not be negative")
	}
	return nil
}

// Register validates p and assigns its UHID before inserting it.
func (s *Service) Register(ctx context.Context, p *Patient) error {
	if err := s.normalize(p); err != nil {
		return err
	}
	seq, err := s.repo.NextSequence(ctx)
	if err != nil {
		return fmt.Errorf("next uhid: %w", err)
	}
	p.UHID = FormatUHID(s.prefix, s.now().Year(), seq)
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshAge(p)
	return p, nil
}

func (s *Service) GetByUHID(ctx context.Context, uhid string) (*Patient, error) {
	p, err := s.repo.GetByUHID(ctx, strings.TrimSpace(uhid))
	if err != nil {
		return nil, err
	}
	s.refreshAge(p)
	return p, nil
}

// Update replaces the editable fields. The UHID never changes.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := s.normalize(p); err != nil {
		return err
	}
	p.UHID = existing.UHID
	p.CreatedAt = existing.CreatedAt
	return s.repo.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	items, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range items {
		s.refreshAge(p)
	}
	return items, total, nil
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	if g, ok := params["gender"]; ok {
		params["gender"] = strings.ToLower(g)
	}
	items, total, err := s.repo.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range items {
		s.refreshAge(p)
	}
	return items, total, nil
}

// CountNewSince counts registrations on or after since.
func (s *Service) CountNewSince(ctx context.Context, since time.Time) (int, error) {
	return s.repo.CountCreatedSince(ctx, since)
}

func (s *Service) refreshAge(p *Patient) {
	if p.DateOfBirth == nil {
		return
	}
	age := AgeAt(*p.DateOfBirth, s.now())
	p.Age = &age
}
