package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/ecsportal/records"
)

// CleanText collapses every run of whitespace (including newlines and
// non-breaking spaces) into one space, drops zero-width characters, and trims.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

var (
	dmyRe  = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{4})`)
	ymdRe  = regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})`)
	dMonRe = regexp.MustCompile(`(?i)(\d{1,2})\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?\s+(\d{4})`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseDate finds a date in s. It tries day/month/year, then year/month/day,
// then "15 Oct 2025"; the first pattern that forms a real calendar date wins.
// The result is midnight UTC of that day. ok is false when nothing matched.
func ParseDate(s string) (t time.Time, ok bool) {
	if s == "" {
		return time.Time{}, false
	}
	if m := dmyRe.FindStringSubmatch(s); m != nil {
		if t, ok := calendarDate(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1])); ok {
			return t, true
		}
	}
	if m := ymdRe.FindStringSubmatch(s); m != nil {
		if t, ok := calendarDate(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])); ok {
			return t, true
		}
	}
	if m := dMonRe.FindStringSubmatch(s); m != nil {
		if t, ok := calendarDate(atoi(m[3]), months[strings.ToLower(m[2])], atoi(m[1])); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// calendarDate rejects dates that time.Date would normalise, like 31/02.
func calendarDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// NoticePriority is high when the title mentions urgency, medium otherwise.
func NoticePriority(title string) records.Priority {
	lower := strings.ToLower(title)
	if strings.Contains(lower, "urgent") || strings.Contains(lower, "important") {
		return records.PriorityHigh
	}
	return records.PriorityMedium
}
