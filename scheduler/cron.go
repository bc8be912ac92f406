package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSchedule is wrapped by every cron parse or job config error.
var ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

// Common expressions.
const (
	EveryMinute     = "* * * * *"
	Every5Minutes   = "*/5 * * * *"
	Every15Minutes  = "*/15 * * * *"
	Every30Minutes  = "*/30 * * * *"
	EveryHour       = "0 * * * *"
	Every2Hours     = "0 */2 * * *"
	Every4Hours     = "0 */4 * * *"
	Every6Hours     = "0 */6 * * *"
	Every12Hours    = "0 */12 * * *"
	DailyAtMidnight = "0 0 * * *"
	DailyAt6AM      = "0 6 * * *"
	DailyAt8AM      = "0 8 * * *"
	WeeklySunday    = "0 0 * * 0"
	MonthlyFirst    = "0 0 1 * *"
)

// CronExpressions maps a readable name to each common expression.
var CronExpressions = map[string]string{
	"every_minute":      EveryMinute,
	"every_5_minutes":   Every5Minutes,
	"every_15_minutes":  Every15Minutes,
	"every_30_minutes":  Every30Minutes,
	"every_hour":        EveryHour,
	"every_2_hours":     Every2Hours,
	"every_4_hours":     Every4Hours,
	"every_6_hours":     Every6Hours,
	"every_12_hours":    Every12Hours,
	"daily_at_midnight": DailyAtMidnight,
	"daily_at_6am":      DailyAt6AM,
	"daily_at_8am":      DailyAt8AM,
	"weekly_sunday":     WeeklySunday,
	"monthly_first":     MonthlyFirst,
}

// Schedule is a parsed five-field cron expression:
// minute hour day-of-month month day-of-week.
type Schedule struct {
	expr   string
	loc    *time.Location
	minute uint64
	hour   uint64
	dom    uint64
	month  uint64
	dow    uint64
	// domAny/dowAny record a field starting with "*": when both day fields are
	// restricted a day matches if either does.
	domAny bool
	dowAny bool
}

type bounds struct {
	min, max int
	names    map[string]int
}

var (
	minuteBounds = bounds{0, 59, nil}
	hourBounds   = bounds{0, 23, nil}
	domBounds    = bounds{1, 31, nil}
	monthBounds  = bounds{1, 12, map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
	dowBounds = bounds{0, 7, map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
)

// ParseCron parses expr evaluated in loc (UTC when nil). Day-of-week 7 is
// Sunday, like 0.
func ParseCron(expr string, loc *time.Location) (*Schedule, error) {
	if loc == nil {
		loc = time.UTC
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: %q: want 5 fields, got %d", ErrInvalidSchedule, expr, len(fields))
	}
	s := &Schedule{expr: strings.Join(fields, " "), loc: loc}
	var err error
	if s.minute, err = parseField(fields[0], minuteBounds); err != nil {
		return nil, fmt.Errorf("%w: %q minute: %v", ErrInvalidSchedule, expr, err)
	}
	if s.hour, err = parseField(fields[1], hourBounds); err != nil {
		return nil, fmt.Errorf("%w: %q hour: %v", ErrInvalidSchedule, expr, err)
	}
	if s.dom, err = parseField(fields[2], domBounds); err != nil {
		return nil, fmt.Errorf("%w: %q day of month: %v", ErrInvalidSchedule, expr, err)
	}
	if s.month, err = parseField(fields[3], monthBounds); err != nil {
		return nil, fmt.Errorf("%w: %q month: %v", ErrInvalidSchedule, expr, err)
	}
	if s.dow, err = parseField(fields[4], dowBounds); err != nil {
		return nil, fmt.Errorf("%w: %q day of week: %v", ErrInvalidSchedule, expr, err)
	}
	if s.dow&(1<<7) != 0 {
		s.dow |= 1
	}
	// A field starting with * is unrestricted even with a step, so the
	// day fields are OR-ed only when both are explicit lists or ranges.
	s.domAny = strings.HasPrefix(fields[2], "*")
	s.dowAny = strings.HasPrefix(fields[4], "*")
	return s, nil
}

func parseField(field string, b bounds) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		bits, err := parsePart(part, b)
		if err != nil {
			return 0, err
		}
		set |= bits
	}
	return set, nil
}

// parsePart handles "*", "a", "a-b" with an optional "/step".
func parsePart(part string, b bounds) (uint64, error) {
	rng, stepStr, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepStr)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("bad step %q", stepStr)
		}
		step = n
	}

	lo, hi := b.min, b.max
	switch {
	case rng == "*":
	case strings.Contains(rng, "-"):
		a, z, _ := strings.Cut(rng, "-")
		var err error
		if lo, err = value(a, b); err != nil {
			return 0, err
		}
		if hi, err = value(z, b); err != nil {
			return 0, err
		}
		if lo > hi {
			return 0, fmt.Errorf("range %q is reversed", rng)
		}
	default:
		v, err := value(rng, b)
		if err != nil {
			return 0, err
		}
		lo = v
		if !hasStep {
			hi = v
		}
	}

	var bits uint64
	for i := lo; i <= hi; i += step {
		bits |= 1 << uint(i)
	}
	return bits, nil
}

func value(s string, b bounds) (int, error) {
	if n, ok := b.names[strings.ToLower(s)]; ok {
		return n, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	if n < b.min || n > b.max {
		return 0, fmt.Errorf("value %d out of range %d-%d", n, b.min, b.max)
	}
	return n, nil
}

// String returns the normalised expression.
func (s *Schedule) String() string { return s.expr }

// Location returns the zone the schedule is evaluated in.
func (s *Schedule) Location() *time.Location { return s.loc }

// Next returns the first matching minute strictly after t, in the
// schedule's location. It returns the zero time if nothing matches within
// five years (e.g. "0 0 30 2 *").
func (s *Schedule) Next(t time.Time) time.Time {
	t = t.In(s.loc)
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()+1, 0, 0, s.loc)
	limit := t.Year() + 5

	for t.Year() <= limit {
		if s.month&(1<<uint(t.Month())) == 0 {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, s.loc)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, s.loc)
			continue
		}
		// Hour and minute steps use absolute arithmetic so a repeated
		// wall-clock hour never sends t backwards.
		if s.hour&(1<<uint(t.Hour())) == 0 {
			t = t.Add(time.Duration(60-t.Minute()) * time.Minute)
			continue
		}
		if s.minute&(1<<uint(t.Minute())) == 0 {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (s *Schedule) dayMatches(t time.Time) bool {
	dom := s.dom&(1<<uint(t.Day())) != 0
	dow := s.dow&(1<<uint(t.Weekday())) != 0
	if s.domAny || s.dowAny {
		return dom && dow
	}
	return dom || dow
}

// ValidateCron reports whether expr is a valid five-field expression.
func ValidateCron(expr string) bool {
	_, err := ParseCron(expr, nil)
	return err == nil
}

// NextExecution returns the next fire time of expr after from, in loc.
func NextExecution(expr string, from time.Time, loc *time.Location) (time.Time, error) {
	s, err := ParseCron(expr, loc)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from), nil
}
