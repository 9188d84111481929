package normalize

import (
	"strings"
	"time"
)

// ISODate is the layout dates are re-emitted in.
const ISODate = "2006-01-02"

// dayFirstLayouts lists the accepted date spellings, day before month. Go's
// "2" and "1" verbs accept one or two digits.
var dayFirstLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"2-1-2006 15:04",
	"2-1-2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006 15:04:05",
	ISODate,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDayFirst parses s as a day-first calendar date and drops any time of
// day. ok is false when no layout matches.
func ParseDayFirst(s string) (d time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dayFirstLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// isAmbiguous reports whether a day-first date would also have parsed as a
// different month-first date, e.g. 01/02 vs 02/01. ISO input is never
// ambiguous.
func isAmbiguous(raw string, d time.Time) bool {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 5 && raw[4] == '-' {
		return false
	}
	return d.Day() <= 12 && d.Day() != int(d.Month())
}

// ReformatDate converts a day-first date to YYYY-MM-DD.
func ReformatDate(s string) (string, bool) {
	d, ok := ParseDayFirst(s)
	if !ok {
		return "", false
	}
	return d.Format(ISODate), true
}
