package pharmacy

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Summarize folds batches into one StockSummary per medication. Expired
// batches are excluded from the totals. A medication is low on stock when
// its usable quantity is below its reorder level.
func Summarize(meds []*Medication, batches []*Batch, today time.Time, warningDays int) []StockSummary {
	day := truncateDay(today)
	horizon := day.AddDate(0, 0, warningDays)

	byMed := make(map[uuid.UUID][]*Batch, len(meds))
	for _, b := range batches {
		byMed[b.MedicationID] = append(byMed[b.MedicationID], b)
	}

	out := make([]StockSummary, 0, len(meds))
	for _, m := range meds {
		s := StockSummary{MedicationID: m.ID, Name: m.Name, Category: m.Category, ReorderLevel: m.ReorderLevel}
		for _, b := range byMed[m.ID] {
			if b.Expired(day) || b.Quantity <= 0 {
				continue
			}
			s.TotalQuantity += b.Quantity
			s.BatchCount++
			if s.NearestExpiry == nil || b.ExpiryDate.Before(*s.NearestExpiry) {
				exp := b.ExpiryDate
				s.NearestExpiry = &exp
			}
			if !b.ExpiryDate.After(horizon) {
				s.ExpiringSoon++
			}
		}
		s.LowStock = s.TotalQuantity < m.ReorderLevel
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PlanPicks allocates qty across batches first-expiry-first-out. Expired and
// empty batches are skipped. It returns ErrInsufficientStock when the usable
// stock is short.
func PlanPicks(batches []*Batch, qty int, today time.Time) ([]Pick, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	usable := make([]*Batch, 0, len(batches))
	for _, b := range batches {
		if b.Quantity > 0 && !b.Expired(today) {
			usable = append(usable, b)
		}
	}
	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].ExpiryDate.Equal(usable[j].ExpiryDate) {
			return usable[i].ReceivedAt.Before(usable[j].ReceivedAt)
		}
		return usable[i].ExpiryDate.Before(usable[j].ExpiryDate)
	})

	remaining := qty
	var picks []Pick
	for _, b := range usable {
		if remaining == 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		picks = append(picks, Pick{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			ExpiryDate:  b.ExpiryDate,
			Quantity:    take,
			UnitPrice:   b.SellingPrice,
		})
		remaining -= take
	}
	if remaining > 0 {
		return nil, ErrInsufficientStock
	}
	return picks, nil
}
