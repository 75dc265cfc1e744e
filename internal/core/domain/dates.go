package domain

import (
	"errors"
	"strings"
	"time"
)

// =============================================================================
// Date Parsing
// =============================================================================

// ErrUnparseableDate is returned when a date string matches none of the
// accepted formats. Callers must branch on it explicitly: a parse failure is
// never the same thing as zero usage.
var ErrUnparseableDate = errors.New("date does not match any accepted format")

// dateFormats is the ordered list of accepted layouts. Records imported from
// the legacy YAML fleet file use slash dates, optionally with a time part;
// dash dates appear in hand-edited files.
var dateFormats = []string{
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses a date field by trying each accepted layout in order.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparseableDate
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseableDate
}

// ParseDateEndOfDay parses a date field and, when the source carried no time
// part, normalizes it to 23:59:59 on that day. Decommission dates use this so
// a date-only entry bills through the end of its day.
func ParseDateEndOfDay(s string) (time.Time, error) {
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	if !strings.Contains(strings.TrimSpace(s), " ") {
		t = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
	}
	return t, nil
}

// FormatDate renders a date in the canonical storage layout.
func FormatDate(t time.Time) string {
	return t.Format("2006/01/02")
}

// FormatDateTime renders a timestamp in the canonical storage layout.
func FormatDateTime(t time.Time) string {
	return t.Format("2006/01/02 15:04:05")
}
