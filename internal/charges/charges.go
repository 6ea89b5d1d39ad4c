// Package charges turns the per-charge amounts and jail times of a report
// into its totals.
//
// Totals are never taken from the client. The service recomputes them from
// the parallel charge arrays on every create, so
//
//	totalAmount   == sum(amountsDue)   (two decimal places)
//	totalJailTime == sum(jailTimes)    (seconds)
//
// always holds for stored records.
package charges

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sakif/precinct/internal/apperror"
)

// Totals is the derived part of a report's charges.
type Totals struct {
	Amount   string // decimal text with two places, e.g. "250.00"
	JailTime int64  // seconds
}

// Compute validates the parallel charge arrays and sums them.
func Compute(penalCodes, amountsDue, jailTimes []string) (Totals, error) {
	if len(penalCodes) == 0 {
		return Totals{}, apperror.ValidationFailed("penalCodes", "at least one penal code is required")
	}
	if len(amountsDue) != len(penalCodes) || len(jailTimes) != len(penalCodes) {
		return Totals{}, apperror.ValidationFailed("penalCodes",
			fmt.Sprintf("penalCodes, amountsDue and jailTimes must have the same length (got %d, %d, %d)",
				len(penalCodes), len(amountsDue), len(jailTimes)))
	}
	for i, code := range penalCodes {
		if strings.TrimSpace(code) == "" {
			return Totals{}, apperror.ValidationFailed("penalCodes",
				fmt.Sprintf("penal code %d is empty", i+1))
		}
	}

	amount, err := SumAmounts(amountsDue)
	if err != nil {
		return Totals{}, err
	}
	jail, err := SumJailTimes(jailTimes)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Amount: amount, JailTime: jail}, nil
}

// SumAmounts adds money amounts and formats the result with two decimals.
// A leading "$", thousands separators and surrounding spaces are accepted.
// An empty amount counts as zero.
func SumAmounts(amounts []string) (string, error) {
	total := decimal.Zero
	for i, raw := range amounts {
		d, err := ParseAmount(raw)
		if err != nil {
			return "", apperror.ValidationFailed("amountsDue",
				fmt.Sprintf("amount %d (%q) is not a valid amount", i+1, raw))
		}
		total = total.Add(d)
	}
	return total.StringFixed(2), nil
}

// ParseAmount parses a single amount. Negative amounts are rejected.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", d)
	}
	return d, nil
}

// MaxJailTime bounds a single jail time and a report's total, in seconds.
const MaxJailTime int64 = 100 * 365 * 86400

// SumJailTimes adds jail times, returning seconds.
func SumJailTimes(jailTimes []string) (int64, error) {
	var total int64
	for i, raw := range jailTimes {
		secs, err := ParseJailTime(raw)
		if err != nil {
			return 0, apperror.ValidationFailed("jailTimes",
				fmt.Sprintf("jail time %d (%q) is not a valid duration", i+1, raw))
		}
		if secs > MaxJailTime-total {
			return 0, apperror.ValidationFailed("jailTimes",
				fmt.Sprintf("total jail time exceeds %d seconds", MaxJailTime))
		}
		total += secs
	}
	return total, nil
}

// unitSeconds maps the unit words officers actually type to seconds.
var unitSeconds = map[string]int64{
	"s": 1, "sec": 1, "secs": 1, "second": 1, "seconds": 1,
	"m": 60, "min": 60, "mins": 60, "minute": 60, "minutes": 60,
	"h": 3600, "hr": 3600, "hrs": 3600, "hour": 3600, "hours": 3600,
	"d": 86400, "day": 86400, "days": 86400,
}

// ParseJailTime converts one jail time entry to seconds.
//
// Accepted forms:
//
//	""  "none"  "n/a"          → 0
//	"90"                       → 90 (bare integers are seconds)
//	"5 minutes"  "1 hr 30 min" → number/unit pairs
//	"1h30m"                    → Go duration syntax
func ParseJailTime(raw string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "none", "n/a", "-":
		return 0, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative jail time %d", n)
		}
		if n > MaxJailTime {
			return 0, fmt.Errorf("jail time %d is too long", n)
		}
		return n, nil
	}

	if secs, ok := parseUnitPairs(s); ok {
		return secs, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative jail time %s", d)
	}
	secs := int64(d / time.Second)
	if secs > MaxJailTime {
		return 0, fmt.Errorf("jail time %s is too long", d)
	}
	return secs, nil
}

// parseUnitPairs handles "5 minutes", "1 hour 30 minutes" and "2 hours, 5 mins".
// A result over MaxJailTime is rejected.
func parseUnitPairs(s string) (int64, bool) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) == 0 || len(fields)%2 != 0 {
		return 0, false
	}
	var total int64
	for i := 0; i < len(fields); i += 2 {
		n, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		unit, ok := unitSeconds[fields[i+1]]
		if !ok {
			return 0, false
		}
		if n > (MaxJailTime-total)/unit {
			return 0, false
		}
		total += n * unit
	}
	return total, true
}
