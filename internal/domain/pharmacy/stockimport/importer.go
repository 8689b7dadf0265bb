package stockimport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Store is what the importer needs from the pharmacy.
type Store interface {
	// BatchExists matches the batch number case-insensitively with the expiry.
	BatchExists(ctx context.Context, batchNumber string, expiry time.Time) (bool, error)
	// ImportRow finds or creates the medication by name and inserts the batch.
	ImportRow(ctx context.Context, row StockRow) error
}

type Result struct {
	Row         int    `json:"row"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Medication  string `json:"medication,omitempty"`
	BatchNumber string `json:"batch_number,omitempty"`
}

type Summary struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Errors  int      `json:"errors"`
	Skipped int      `json:"skipped"`
	Results []Result `json:"results"`
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	s.Total++
	switch r.Status {
	case StatusSuccess:
		s.Success++
	case StatusError:
		s.Errors++
	case StatusSkipped:
		s.Skipped++
	}
}

type Importer struct {
	store  Store
	logger zerolog.Logger
}

func NewImporter(store Store, logger zerolog.Logger) *Importer {
	return &Importer{store: store, logger: logger.With().Str("component", "stock_import").Logger()}
}

func dedupKey(batch string, expiry time.Time) string {
	return strings.ToLower(strings.TrimSpace(batch)) + "|" + expiry.Format("2006-01-02")
}

// Run inserts rows one after another. A failing row is recorded and the
// loop moves on; only context cancellation stops it early. Blank lines never
// reach Run, so every row given produces a result.
func (im *Importer) Run(ctx context.Context, rows []StockRow) (Summary, error) {
	sum := Summary{Results: []Result{}}
	seen := map[string]int{}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res := Result{Row: row.Row, Medication: row.Name, BatchNumber: row.BatchNumber}

		switch {
		case row.Err != nil:
			res.Status, res.Message = StatusError, row.Err.Error()
		case row.Name == "":
			res.Status, res.Message = StatusError, "medicine name is required"
		case row.BatchNumber == "":
			res.Status, res.Message = StatusError, "batch number is required"
		case row.Quantity < 0:
			res.Status, res.Message = StatusError, "quantity must not be negative"
		}
		if res.Status != "" {
			sum.add(res)
			continue
		}

		key := dedupKey(row.BatchNumber, row.ExpiryDate)
		if first, dup := seen[key]; dup {
			res.Status, res.Message = StatusSkipped, fmt.Sprintf("duplicate of row %d", first)
			sum.add(res)
			continue
		}
		exists, err := im.store.BatchExists(ctx, row.BatchNumber, row.ExpiryDate)
		if err != nil {
			res.Status, res.Message = StatusError, err.Error()
			sum.add(res)
			continue
		}
		if exists {
			res.Status, res.Message = StatusSkipped, "batch already exists"
			sum.add(res)
			continue
		}

		if err := im.store.ImportRow(ctx, row); err != nil {
			im.logger.Warn().Err(err).Int("row", row.Row).Str("batch", row.BatchNumber).Msg("stock row failed")
			res.Status, res.Message = StatusError, err.Error()
			sum.add(res)
			continue
		}
		seen[key] = row.Row
		res.Status = StatusSuccess
		sum.add(res)
	}

	im.logger.Info().
		Int("total", sum.Total).
		Int("success", sum.Success).
		Int("errors", sum.Errors).
		Int("skipped", sum.Skipped).
		Msg("stock import finished")
	return sum, nil
}
