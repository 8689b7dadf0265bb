// Package dashboard aggregates the front-desk summary from the other
// services and caches it per tenant.
package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/bed"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/platform/cache"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/dates"
)

type Patients interface {
	List(ctx context.Context, limit, offset int) ([]*patient.Patient, int, error)
	CountNewSince(ctx context.Context, since time.Time) (int, error)
}

type Beds interface {
	Occupancy(ctx context.Context) (bed.Occupancy, error)
	CountAdmitted(ctx context.Context) (int, error)
}

type Stock interface {
	LowStock(ctx context.Context) ([]pharmacy.StockSummary, error)
	ExpiringBatches(ctx context.Context, days int) ([]*pharmacy.StockBatch, error)
	WarningDays() int
}

type Prescriptions interface {
	CountPending(ctx context.Context) (int, error)
}

type Revisits interface {
	CountToday(ctx context.Context) (int, error)
}

type Billing interface {
	DailyRevenue(ctx context.Context, day time.Time) (*billing.Revenue, error)
}

// Sources are the services the summary is read from.
type Sources struct {
	Patients      Patients
	Beds          Beds
	Stock         Stock
	Prescriptions Prescriptions
	Revisits      Revisits
	Billing       Billing
}

type BedCounts struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Occupied    int `json:"occupied"`
	Maintenance int `json:"maintenance"`
	Reserved    int `json:"reserved"`
}

type Summary struct {
	TotalPatients        int        `json:"total_patients"`
	NewPatientsToday     int        `json:"new_patients_today"`
	AdmittedPatients     int        `json:"admitted_patients"`
	Beds                 BedCounts  `json:"beds"`
	LowStockMedications  int        `json:"low_stock_medications"`
	ExpiringBatches      int        `json:"expiring_batches"`
	PendingPrescriptions int        `json:"pending_prescriptions"`
	TodayRevisits        int        `json:"today_revisits"`
	TodayRevenue         float64    `json:"today_revenue"`
	BillsToday           int        `json:"bills_today"`
	Date                 dates.Date `json:"date"`
	GeneratedAt          time.Time  `json:"generated_at"`
}

type Service struct {
	src    Sources
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(src Sources, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{src: src, cache: c, ttl: ttl, logger: logger, now: time.Now}
}

func cacheKey(ctx context.Context) string {
	return "dashboard:" + db.TenantFromContext(ctx)
}

// Summary returns the cached summary for the caller's tenant, computing it
// on a miss. Cache failures are logged and never fail the request.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	key := cacheKey(ctx)
	var cached Summary
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
	}
	if found {
		return &cached, nil
	}
	sum, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	if s.ttl > 0 {
		if err := s.cache.Set(ctx, key, sum, s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
		}
	}
	return sum, nil
}

// Refresh drops the cached summary and recomputes it.
func (s *Service) Refresh(ctx context.Context) (*Summary, error) {
	if err := s.cache.Delete(ctx, cacheKey(ctx)); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard cache invalidate failed")
	}
	return s.Summary(ctx)
}

func (s *Service) compute(ctx context.Context) (*Summary, error) {
	now := s.now()
	today := dates.Of(now)
	sum := &Summary{Date: today, GeneratedAt: now.UTC()}

	var err error
	if _, sum.TotalPatients, err = s.src.Patients.List(ctx, 1, 0); err != nil {
		return nil, err
	}
	if sum.NewPatientsToday, err = s.src.Patients.CountNewSince(ctx, today.Time); err != nil {
		return nil, err
	}
	if sum.AdmittedPatients, err = s.src.Beds.CountAdmitted(ctx); err != nil {
		return nil, err
	}
	occ, err := s.src.Beds.Occupancy(ctx)
	if err != nil {
		return nil, err
	}
	sum.Beds = BedCounts{
		Total:       occ.Overall.Total,
		Available:   occ.Overall.Available,
		Occupied:    occ.Overall.Occupied,
		Maintenance: occ.Overall.Maintenance,
		Reserved:    occ.Overall.Reserved,
	}

	low, err := s.src.Stock.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	sum.LowStockMedications = len(low)
	expiring, err := s.src.Stock.ExpiringBatches(ctx, s.src.Stock.WarningDays())
	if err != nil {
		return nil, err
	}
	sum.ExpiringBatches = len(expiring)

	if sum.PendingPrescriptions, err = s.src.Prescriptions.CountPending(ctx); err != nil {
		return nil, err
	}
	if sum.TodayRevisits, err = s.src.Revisits.CountToday(ctx); err != nil {
		return nil, err
	}
	rev, err := s.src.Billing.DailyRevenue(ctx, now)
	if err != nil {
		return nil, err
	}
	sum.TodayRevenue = rev.Total
	sum.BillsToday = rev.Bills
	return sum, nil
}
