package billing

import (
	"fmt"
	"time"

	"github.com/hms/hms/pkg/money"
)

// Quote is the priced form of a bill before it is stored.
type Quote struct {
	Items          []BillItem `json:"items"`
	Subtotal       float64    `json:"subtotal"`
	DiscountType   string     `json:"discount_type"`
	DiscountValue  float64    `json:"discount_value"`
	DiscountAmount float64    `json:"discount_amount"`
	TaxPercent     float64    `json:"tax_percent"`
	TaxAmount      float64    `json:"tax_amount"`
	Total          float64    `json:"total"`
}

// CalculateQuote prices items. The discount is a flat amount or a percent of
// the subtotal, clamped to the subtotal; tax applies to the discounted amount.
func CalculateQuote(items []BillItem, discountType string, discountValue, taxPercent float64) (Quote, error) {
	if discountType == "" {
		discountType = DiscountFlat
	}
	switch {
	case discountType != DiscountFlat && discountType != DiscountPercent:
		return Quote{}, fmt.Errorf("discount_type must be flat or percent")
	case discountValue < 0:
		return Quote{}, fmt.Errorf("discount_value must not be negative")
	case discountType == DiscountPercent && discountValue > 100:
		return Quote{}, fmt.Errorf("percent discount must not exceed 100")
	case taxPercent < 0:
		return Quote{}, fmt.Errorf("tax_percent must not be negative")
	}

	q := Quote{
		Items:         make([]BillItem, len(items)),
		DiscountType:  discountType,
		DiscountValue: discountValue,
		TaxPercent:    taxPercent,
	}
	var subtotal float64
	for i, it := range items {
		if it.Quantity < 0 {
			return Quote{}, fmt.Errorf("item %d: quantity must not be negative", i+1)
		}
		if it.UnitPrice < 0 {
			return Quote{}, fmt.Errorf("item %d: unit_price must not be negative", i+1)
		}
		line := float64(it.Quantity) * it.UnitPrice
		it.LineTotal = money.Round2(line)
		q.Items[i] = it
		subtotal += line
	}

	discount := discountValue
	if discountType == DiscountPercent {
		discount = subtotal * discountValue / 100
	}
	if discount > subtotal {
		discount = subtotal
	}
	taxable := subtotal - discount
	tax := taxable * taxPercent / 100

	q.Subtotal = money.Round2(subtotal)
	q.DiscountAmount = money.Round2(discount)
	q.TaxAmount = money.Round2(tax)
	q.Total = money.Round2(taxable + tax)
	return q, nil
}

// FormatBillNumber renders PH-YYYYMMDD-NNNN.
func FormatBillNumber(day time.Time, seq int) string {
	return fmt.Sprintf("PH-%s-%04d", day.Format("20060102"), seq)
}

// PaymentStatusFor derives the payment status from what has been paid.
func PaymentStatusFor(total, paid float64) string {
	switch {
	case paid <= 0 && total > 0:
		return StatusPending
	case paid >= total:
		return StatusPaid
	}
	return StatusPartial
}
