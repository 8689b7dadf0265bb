package prescription

import (
	"fmt"
	"strconv"
	"strings"
)

var frequencyCodes = map[string]int{
	"OD":   1,
	"QD":   1,
	"BD":   2,
	"BID":  2,
	"TDS":  3,
	"TID":  3,
	"QID":  4,
	"HS":   1,
	"SOS":  1,
	"STAT": 1,
}

// DosesPerDay reads a frequency either as a code (OD, BD, TDS, ...) or as a
// morning-noon-night count such as "1-0-1".
func DosesPerDay(freq string) (int, error) {
	f := strings.ToUpper(strings.TrimSpace(freq))
	if f == "" {
		return 0, fmt.Errorf("frequency is required")
	}
	if n, ok := frequencyCodes[f]; ok {
		return n, nil
	}
	if strings.Contains(f, "-") {
		total := 0
		for _, part := range strings.Split(f, "-") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 0 {
				return 0, fmt.Errorf("unrecognised frequency %q", freq)
			}
			total += n
		}
		if total == 0 {
			return 0, fmt.Errorf("frequency %q has no doses", freq)
		}
		return total, nil
	}
	return 0, fmt.Errorf("unrecognised frequency %q", freq)
}

// DeriveQuantity is doses per day times days. A zero duration counts as one day.
func DeriveQuantity(freq string, days int) (int, error) {
	n, err := DosesPerDay(freq)
	if err != nil {
		return 0, err
	}
	if days < 0 {
		return 0, fmt.Errorf("duration_days must not be negative")
	}
	if days == 0 {
		days = 1
	}
	return n * days, nil
}
