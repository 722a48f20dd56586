package leads

import (
	"regexp"
	"strings"
	"time"
)

// Accepted deadline layouts, tried in order. Day-first forms come before
// month-first so "01/02/2026" reads as 1 February; a month-first date like
// "05/25/2026" still parses because 25 is not a valid month.
var deadlineLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"01/02/2006",
	"1/2/2006",
	"02-01-2006",
	"2-1-2006",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
}

var ordinalSuffix = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)\b`)

// ParseDeadline parses a deadline string against the accepted layouts and
// hard-validates the result: the year must fall in [2020, 2100] and the
// calendar must accept the month and day. Returns false for anything else,
// including placeholder values.
func ParseDeadline(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	switch strings.ToLower(s) {
	case "tbd", "unknown", "rolling", "see website", "check website":
		return time.Time{}, false
	}

	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ",", ", ")
	s = strings.Join(strings.Fields(s), " ")

	for _, layout := range deadlineLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 2020 || t.Year() > 2100 {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// DeadlineOf returns the best parsed deadline for a lead, preferring the
// structured deadline_date over the freeform deadline.
func DeadlineOf(dateISO, freeform string) (time.Time, bool) {
	if dateISO != "" {
		if t, ok := ParseDeadline(dateISO); ok {
			return t, true
		}
	}
	return ParseDeadline(freeform)
}

// DaysUntil counts whole days from now to the deadline, negative when the
// deadline has passed. Both times are compared at date precision.
func DaysUntil(deadline, now time.Time) int {
	d := deadline.Truncate(24 * time.Hour)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Sub(n).Hours() / 24)
}
