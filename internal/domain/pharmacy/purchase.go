package pharmacy

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/dates"
	"github.com/hms/hms/pkg/money"
)

// PurchaseLine is one row of a supplier invoice. The input fields are bound
// from the request; the computed fields are filled by RecalculateLine.
type PurchaseLine struct {
	ID              uuid.UUID  `json:"id,omitempty"`
	MedicationID    *uuid.UUID `json:"medication_id,omitempty"`
	MedicationName  string     `json:"medication_name,omitempty"`
	BatchID         *uuid.UUID `json:"batch_id,omitempty"`
	BatchNumber     string     `json:"batch_number"`
	ExpiryDate      dates.Date `json:"expiry_date"`
	Quantity        int        `json:"quantity"`
	FreeQuantity    int        `json:"free_quantity"`
	PurchaseRate    float64    `json:"purchase_rate"`
	MRP             float64    `json:"mrp"`
	DiscountPercent float64    `json:"discount_percent"`
	GSTPercent      float64    `json:"gst_percent"`

	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	TaxableAmount  float64 `json:"taxable_amount"`
	CGSTAmount     float64 `json:"cgst_amount"`
	SGSTAmount     float64 `json:"sgst_amount"`
	LineTotal      float64 `json:"line_total"`
	CostPerUnit    float64 `json:"cost_per_unit"`
	ProfitPercent  float64 `json:"profit_percent"`
}

// Purchase maps to the purchases table.
type Purchase struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	InvoiceNumber string         `db:"invoice_number" json:"invoice_number"`
	Supplier      string         `db:"supplier" json:"supplier"`
	PurchaseDate  dates.Date     `db:"purchase_date" json:"purchase_date"`
	Subtotal      float64        `db:"subtotal" json:"subtotal"`
	DiscountTotal float64        `db:"discount_total" json:"discount_total"`
	CGSTTotal     float64        `db:"cgst_total" json:"cgst_total"`
	SGSTTotal     float64        `db:"sgst_total" json:"sgst_total"`
	GrandTotal    float64        `db:"grand_total" json:"grand_total"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	Items         []PurchaseLine `json:"items"`
}

// RecalculateLine derives the amounts of a purchase line from its inputs.
// GST is charged on the discounted amount and split evenly into CGST and
// SGST. Every output is rounded to two decimals.
func RecalculateLine(l PurchaseLine) (PurchaseLine, error) {
	switch {
	case l.Quantity < 0, l.FreeQuantity < 0:
		return l, fmt.Errorf("quantities must not be negative")
	case l.PurchaseRate < 0, l.MRP < 0:
		return l, fmt.Errorf("rates must not be negative")
	case l.DiscountPercent < 0, l.GSTPercent < 0:
		return l, fmt.Errorf("percentages must not be negative")
	case l.DiscountPercent > 100:
		return l, fmt.Errorf("discount_percent must not exceed 100")
	}

	subtotal := float64(l.Quantity) * l.PurchaseRate
	discount := subtotal * l.DiscountPercent / 100
	taxable := subtotal - discount
	gst := taxable * l.GSTPercent / 100
	half := gst / 2
	total := taxable + gst

	var cpu float64
	if units := l.Quantity + l.FreeQuantity; units > 0 {
		cpu = total / float64(units)
	}
	var profit float64
	if cpu != 0 {
		profit = (l.MRP - cpu) / cpu * 100
	}

	l.Subtotal = money.Round2(subtotal)
	l.DiscountAmount = money.Round2(discount)
	l.TaxableAmount = money.Round2(taxable)
	l.CGSTAmount = money.Round2(half)
	l.SGSTAmount = money.Round2(half)
	l.LineTotal = money.Round2(total)
	l.CostPerUnit = money.Round2(cpu)
	l.ProfitPercent = money.Round2(profit)
	return l, nil
}

// PurchaseTotals sums recalculated lines.
type PurchaseTotals struct {
	Subtotal      float64 `json:"subtotal"`
	DiscountTotal float64 `json:"discount_total"`
	CGSTTotal     float64 `json:"cgst_total"`
	SGSTTotal     float64 `json:"sgst_total"`
	GrandTotal    float64 `json:"grand_total"`
}

// RecalculatePurchase recalculates every line and the invoice totals. Errors
// name the 1-based line that failed.
func RecalculatePurchase(lines []PurchaseLine) ([]PurchaseLine, PurchaseTotals, error) {
	out := make([]PurchaseLine, len(lines))
	var t PurchaseTotals
	for i, l := range lines {
		r, err := RecalculateLine(l)
		if err != nil {
			return nil, PurchaseTotals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		out[i] = r
		t.Subtotal += r.Subtotal
		t.DiscountTotal += r.DiscountAmount
		t.CGSTTotal += r.CGSTAmount
		t.SGSTTotal += r.SGSTAmount
		t.GrandTotal += r.LineTotal
	}
	t.Subtotal = money.Round2(t.Subtotal)
	t.DiscountTotal = money.Round2(t.DiscountTotal)
	t.CGSTTotal = money.Round2(t.CGSTTotal)
	t.SGSTTotal = money.Round2(t.SGSTTotal)
	t.GrandTotal = money.Round2(t.GrandTotal)
	return out, t, nil
}

func validatePurchaseHeader(p *Purchase) error {
	p.InvoiceNumber = strings.TrimSpace(p.InvoiceNumber)
	p.Supplier = strings.TrimSpace(p.Supplier)
	if p.InvoiceNumber == "" {
		return fmt.Errorf("invoice_number is required")
	}
	if p.Supplier == "" {
		return fmt.Errorf("supplier is required")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for i, l := range p.Items {
		if l.MedicationID == nil && strings.TrimSpace(l.MedicationName) == "" {
			return fmt.Errorf("line %d: medication_id or medication_name is required", i+1)
		}
		if strings.TrimSpace(l.BatchNumber) == "" {
			return fmt.Errorf("line %d: batch_number is required", i+1)
		}
		if l.ExpiryDate.IsZero() {
			return fmt.Errorf("line %d: expiry_date is required", i+1)
		}
		if l.Quantity+l.FreeQuantity <= 0 {
			return fmt.Errorf("line %d: quantity is required", i+1)
		}
	}
	return nil
}
