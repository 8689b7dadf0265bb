// Package stockimport reads medicine stock sheets (CSV or Excel) and loads
// them into the pharmacy one row at a time.
package stockimport

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// StockRow is one parsed data row. Err is set when a cell could not be
// coerced; the importer reports such rows without inserting them.
type StockRow struct {
	Row           int       `json:"row"`
	Name          string    `json:"name"`
	GenericName   string    `json:"generic_name,omitempty"`
	Manufacturer  string    `json:"manufacturer,omitempty"`
	Category      string    `json:"category,omitempty"`
	BatchNumber   string    `json:"batch_number"`
	ExpiryDate    time.Time `json:"expiry_date"`
	Quantity      int       `json:"quantity"`
	PurchasePrice float64   `json:"purchase_price"`
	SellingPrice  float64   `json:"selling_price"`
	MRP           float64   `json:"mrp"`
	GSTPercent    float64   `json:"gst_percent"`
	Supplier      string    `json:"supplier,omitempty"`
	HSNCode       string    `json:"hsn_code,omitempty"`
	Err           error     `json:"-"`
}

type field int

const (
	fieldName field = iota
	fieldGeneric
	fieldManufacturer
	fieldCategory
	fieldBatch
	fieldExpiry
	fieldQuantity
	fieldPurchasePrice
	fieldSellingPrice
	fieldMRP
	fieldGST
	fieldSupplier
	fieldHSN
)

var aliases = map[field][]string{
	fieldName:          {"medicine", "medicine name", "medication", "drug", "product", "item name", "name"},
	fieldGeneric:       {"generic", "generic name"},
	fieldManufacturer:  {"manufacturer", "company", "mfr"},
	fieldCategory:      {"category"},
	fieldBatch:         {"batch", "batch no", "batch number"},
	fieldExpiry:        {"expiry", "expiry date", "exp", "exp date"},
	fieldQuantity:      {"qty", "quantity", "stock"},
	fieldPurchasePrice: {"purchase price", "cost", "rate", "ptr"},
	fieldSellingPrice:  {"selling price", "price", "sale price"},
	fieldMRP:           {"mrp"},
	fieldGST:           {"gst", "gst %", "tax"},
	fieldSupplier:      {"supplier"},
	fieldHSN:           {"hsn"},
}

var required = []struct {
	f    field
	name string
}{
	{fieldName, "name"},
	{fieldBatch, "batch"},
	{fieldExpiry, "expiry"},
	{fieldQuantity, "quantity"},
}

var headerIndex = func() map[string]field {
	idx := make(map[string]field)
	for f, names := range aliases {
		for _, n := range names {
			idx[normalizeHeader(n)] = f
		}
	}
	return idx
}()

// normalizeHeader folds case and drops whitespace, underscores and dots so
// "Batch_No." and "batch no" compare equal.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		switch r {
		case ' ', '\t', '_', '.', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ErrMissingColumns is wrapped by the error returned when a sheet lacks a
// required column.
var ErrMissingColumns = errors.New("missing required columns")

type columnMap map[field]int

func mapHeader(header []string) (columnMap, error) {
	cols := columnMap{}
	for i, h := range header {
		f, ok := headerIndex[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := cols[f]; !dup {
			cols[f] = i
		}
	}
	var missing []string
	for _, r := range required {
		if _, ok := cols[r.f]; !ok {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columnMap) get(record []string, f field) string {
	i, ok := c[f]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// fromRecords converts a header row plus data rows. Row numbers are 1-based
// file lines, so the first data row is 2.
func fromRecords(records [][]string) ([]StockRow, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	cols, err := mapHeader(records[0])
	if err != nil {
		return nil, err
	}
	rows := make([]StockRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		rows = append(rows, cols.row(rec, i+2))
	}
	return rows, nil
}

func (c columnMap) row(rec []string, line int) StockRow {
	r := StockRow{
		Row:           line,
		Name:          c.get(rec, fieldName),
		GenericName:   c.get(rec, fieldGeneric),
		Manufacturer:  c.get(rec, fieldManufacturer),
		Category:      c.get(rec, fieldCategory),
		BatchNumber:   c.get(rec, fieldBatch),
		PurchasePrice: parseNumber(c.get(rec, fieldPurchasePrice)),
		SellingPrice:  parseNumber(c.get(rec, fieldSellingPrice)),
		MRP:           parseNumber(c.get(rec, fieldMRP)),
		GSTPercent:    parseNumber(c.get(rec, fieldGST)),
		Supplier:      c.get(rec, fieldSupplier),
		HSNCode:       c.get(rec, fieldHSN),
	}
	if r.SellingPrice == 0 {
		r.SellingPrice = r.MRP
	}
	if r.MRP == 0 {
		r.MRP = r.SellingPrice
	}
	qty, err := parseQuantity(c.get(rec, fieldQuantity))
	if err != nil {
		r.Err = err
		return r
	}
	r.Quantity = qty

	raw := c.get(rec, fieldExpiry)
	if raw == "" {
		r.Err = fmt.Errorf("expiry date is required")
		return r
	}
	exp, err := ParseDate(raw)
	if err != nil {
		r.Err = err
		return r
	}
	r.ExpiryDate = exp
	return r
}
