package bed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/websocket"
)

var (
	ErrBedNotFound        = errors.New("bed not found")
	ErrAllocationNotFound = errors.New("bed allocation not found")
	ErrBedOccupied        = errors.New("bed is already occupied")
	ErrBedUnavailable     = errors.New("bed is under maintenance")
	ErrPatientAdmitted    = errors.New("patient already holds an active bed")
	ErrAllocationClosed   = errors.New("bed allocation is already closed")
)

type Service struct {
	beds   BedRepository
	allocs AllocationRepository
	tx     db.TxRunner
	events websocket.EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(beds BedRepository, allocs AllocationRepository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{beds: beds, allocs: allocs, tx: tx, events: websocket.Nop{}, logger: logger, now: time.Now}
}

// SetPublisher sends bed board changes to p once they are committed.
func (s *Service) SetPublisher(p websocket.EventPublisher) {
	if p == nil {
		p = websocket.Nop{}
	}
	s.events = p
}

func (s *Service) publish(ctx context.Context, typ string, a *Allocation) {
	ev := websocket.NewEvent(websocket.TopicBeds, typ, a.BedID, a)
	db.AfterCommit(ctx, func() {
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("bed_id", a.BedID.String()).Str("event", typ).Msg("publish bed event")
		}
	})
}

func validateBed(b *Bed) error {
	b.BedNumber = strings.TrimSpace(b.BedNumber)
	b.Ward = strings.TrimSpace(b.Ward)
	if b.BedNumber == "" {
		return fmt.Errorf("bed_number is required")
	}
	if b.Ward == "" {
		return fmt.Errorf("ward is required")
	}
	if b.BedType == "" {
		b.BedType = "general"
	}
	if !contains(BedTypes, b.BedType) {
		return fmt.Errorf("invalid bed_type: %s", b.BedType)
	}
	if b.Status == "" {
		b.Status = StatusAvailable
	}
	if !contains(BedStatuses, b.Status) {
		return fmt.Errorf("invalid status: %s", b.Status)
	}
	if b.DailyRate < 0 {
		return fmt.Errorf("daily_rate must not be negative")
	}
	return nil
}

// -- Bed CRUD --

func (s *Service) CreateBed(ctx context.Context, b *Bed) error {
	if err := validateBed(b); err != nil {
		return err
	}
	return s.beds.Create(ctx, b)
}

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return s.beds.GetByID(ctx, id)
}

func (s *Service) UpdateBed(ctx context.Context, b *Bed) error {
	if b.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}
	if err := validateBed(b); err != nil {
		return err
	}
	return s.beds.Update(ctx, b)
}

// DeleteBed refuses to remove a bed somebody is allocated to.
func (s *Service) DeleteBed(ctx context.Context, id uuid.UUID) error {
	active, err := s.allocs.GetActiveByBed(ctx, id)
	if err != nil {
		return err
	}
	if active != nil {
		return ErrBedOccupied
	}
	return s.beds.Delete(ctx, id)
}

func (s *Service) ListBeds(ctx context.Context, params map[string]string, limit, offset int) ([]*Bed, int, error) {
	return s.beds.Search(ctx, params, limit, offset)
}

// ListBedViews returns every matching bed with its active allocation and the
// corrected display status.
func (s *Service) ListBedViews(ctx context.Context, params map[string]string) ([]View, error) {
	beds, err := s.beds.ListAll(ctx, params)
	if err != nil {
		return nil, err
	}
	active, err := s.allocs.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byBed := make(map[uuid.UUID]*Allocation, len(active))
	for _, a := range active {
		byBed[a.BedID] = a
	}
	views := make([]View, 0, len(beds))
	for _, b := range beds {
		views = append(views, NewView(b, byBed[b.ID]))
	}
	return views, nil
}

func (s *Service) Occupancy(ctx context.Context) (Occupancy, error) {
	views, err := s.ListBedViews(ctx, nil)
	if err != nil {
		return Occupancy{}, err
	}
	return Summarize(views), nil
}

// -- Allocation --

type AllocateRequest struct {
	BedID             uuid.UUID  `json:"bed_id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	ExpectedDischarge *time.Time `json:"expected_discharge,omitempty"`
	Reason            *string    `json:"reason,omitempty"`
	AllocatedBy       *uuid.UUID `json:"-"`
}

func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (*Allocation, error) {
	if req.BedID == uuid.Nil || req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("bed_id and patient_id are required")
	}
	var out *Allocation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.allocate(ctx, req)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "bed.allocated", out)
	return out, nil
}

func (s *Service) allocate(ctx context.Context, req AllocateRequest) (*Allocation, error) {
	b, err := s.beds.GetForUpdate(ctx, req.BedID)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusMaintenance {
		return nil, ErrBedUnavailable
	}
	existing, err := s.allocs.GetActiveByBed(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrBedOccupied
	}
	admitted, err := s.allocs.GetActiveByPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if admitted != nil {
		return nil, ErrPatientAdmitted
	}

	a := &Allocation{
		BedID:             b.ID,
		PatientID:         req.PatientID,
		AdmittedAt:        s.now().UTC(),
		ExpectedDischarge: req.ExpectedDischarge,
		Reason:            req.Reason,
		Status:            AllocationActive,
		AllocatedBy:       req.AllocatedBy,
	}
	if err := s.allocs.Create(ctx, a); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrBedOccupied
		}
		return nil, err
	}
	if err := s.beds.SetStatus(ctx, b.ID, StatusOccupied); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAllocation(ctx context.Context, id uuid.UUID) (*Allocation, error) {
	return s.allocs.GetByID(ctx, id)
}

func (s *Service) ListActiveAllocations(ctx context.Context) ([]*Allocation, error) {
	return s.allocs.ListActive(ctx)
}

func (s *Service) ListPatientAllocations(ctx context.Context, patientID uuid.UUID) ([]*Allocation, error) {
	return s.allocs.ListByPatient(ctx, patientID)
}

// CountAdmitted is the number of open allocations.
func (s *Service) CountAdmitted(ctx context.Context) (int, error) {
	active, err := s.allocs.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

func (s *Service) Discharge(ctx context.Context, allocationID uuid.UUID) (*Allocation, error) {
	var out *Allocation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.close(ctx, allocationID, AllocationDischarged)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "bed.discharged", out)
	return out, nil
}

func (s *Service) close(ctx context.Context, allocationID uuid.UUID, status string) (*Allocation, error) {
	a, err := s.allocs.GetByID(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if a.Status != AllocationActive {
		return nil, ErrAllocationClosed
	}
	now := s.now().UTC()
	if err := s.allocs.Close(ctx, a.ID, status, now); err != nil {
		return nil, err
	}
	if err := s.beds.SetStatus(ctx, a.BedID, StatusAvailable); err != nil {
		return nil, err
	}
	a.Status = status
	a.DischargedAt = &now
	return a, nil
}

// Transfer closes the allocation as transferred and admits the same patient
// to newBedID in the same transaction.
func (s *Service) Transfer(ctx context.Context, allocationID, newBedID uuid.UUID, by *uuid.UUID) (*Allocation, error) {
	var out *Allocation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		old, err := s.allocs.GetByID(ctx, allocationID)
		if err != nil {
			return err
		}
		if old.BedID == newBedID {
			return fmt.Errorf("patient is already in this bed")
		}
		if _, err := s.close(ctx, allocationID, AllocationTransferred); err != nil {
			return err
		}
		a, err := s.allocate(ctx, AllocateRequest{
			BedID:             newBedID,
			PatientID:         old.PatientID,
			ExpectedDischarge: old.ExpectedDischarge,
			Reason:            old.Reason,
			AllocatedBy:       by,
		})
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "bed.transferred", out)
	return out, nil
}

func (s *Service) StayCharge(ctx context.Context, allocationID uuid.UUID) (StayCharge, error) {
	a, err := s.allocs.GetByID(ctx, allocationID)
	if err != nil {
		return StayCharge{}, err
	}
	b, err := s.beds.GetByID(ctx, a.BedID)
	if err != nil {
		return StayCharge{}, err
	}
	return ComputeStayCharge(a, b, s.now()), nil
}
