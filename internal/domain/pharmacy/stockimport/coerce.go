package stockimport

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxQuantity bounds an imported batch quantity to what the stock column holds.
const maxQuantity = math.MaxInt32

// cleanNumber drops currency markers, grouping commas, spaces and a trailing
// percent sign. Anything else is left for strconv to judge.
func cleanNumber(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range []string{"₹", "inr", "rs.", "rs"} {
		s = strings.TrimPrefix(s, p)
	}
	s = strings.TrimSuffix(s, "%")
	return strings.NewReplacer(",", "", " ", "").Replace(s)
}

func toFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(cleanNumber(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseNumber reads a price or percentage and returns 0 for anything that
// is not a finite number.
func parseNumber(s string) float64 {
	v, _ := toFloat(s)
	return v
}

// parseQuantity truncates to whole units. An empty cell is 0; a value that
// is not a number or does not fit maxQuantity is an error.
func parseQuantity(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	v, ok := toFloat(s)
	if !ok {
		return 0, fmt.Errorf("quantity %q is not a number", s)
	}
	if v > maxQuantity || v < -maxQuantity {
		return 0, fmt.Errorf("quantity %q is out of range", s)
	}
	return int(v), nil
}

var dayLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "2/1/2006", "2-1-2006"}

var monthLayouts = []string{"01/2006", "01-2006", "1/2006", "1-2006", "Jan-2006", "Jan/2006", "Jan 2006", "January-2006", "January 2006", "Jan-06"}

// excelEpoch is day zero of the 1900 date system as excelize reads it.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate reads an expiry date. Month-only values mean the last day of
// that month. Plain numbers are Excel serial dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range dayLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	for _, l := range monthLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return endOfMonth(t), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		return excelEpoch.AddDate(0, 0, int(serial)), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised expiry date %q", s)
}

func endOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}
