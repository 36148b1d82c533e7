// utils/dates.go
package utils

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

func BeginningOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// DateOf keeps the calendar day of t and pins it to midnight UTC, which is
// how plan windows and visit dates are stored.
func DateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func DaysBetween(start, end time.Time) int {
	start = DateOf(start)
	end = DateOf(end)
	return int(end.Sub(start).Hours() / 24)
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp. An empty string
// yields the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
