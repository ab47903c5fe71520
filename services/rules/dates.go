package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 86400

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseDate reads a date literal. dateOnly is true when the literal named a
// calendar day rather than an instant.
func parseDate(value string) (ts time.Time, dateOnly bool, err error) {
	value = strings.TrimSpace(value)
	for i, layout := range dateLayouts {
		if t, perr := time.Parse(layout, value); perr == nil {
			return t.UTC(), i == 0, nil
		}
	}
	if epoch, perr := strconv.ParseInt(value, 10, 64); perr == nil {
		return time.Unix(epoch, 0).UTC(), false, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: unrecognized date %q", ErrInvalidValue, value)
}

// dayBounds returns the first and last second of the UTC day containing t.
func dayBounds(t time.Time) (int64, int64) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
	return start, start + secondsPerDay - 1
}

// relativeCutoff parses "<n>:<unit>" and returns now minus that offset.
func relativeCutoff(value string, now time.Time) (int64, error) {
	amountRaw, unitRaw, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, fmt.Errorf("%w: expected <number>:<unit>", ErrInvalidValue)
	}
	amount, err := strconv.Atoi(strings.TrimSpace(amountRaw))
	if err != nil || amount < 0 {
		return 0, fmt.Errorf("%w: bad amount %q", ErrInvalidValue, amountRaw)
	}

	now = now.UTC()
	var cutoff time.Time
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unitRaw)), "s") {
	case "day":
		cutoff = now.AddDate(0, 0, -amount)
	case "week":
		cutoff = now.AddDate(0, 0, -7*amount)
	case "month":
		cutoff = now.AddDate(0, -amount, 0)
	case "year":
		cutoff = now.AddDate(-amount, 0, 0)
	default:
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidValue, unitRaw)
	}
	return cutoff.Unix(), nil
}
