package utils

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/bayslots/internal/constants"
)

// LoadLocation loads the business reference timezone.
// "Local" and the empty string are rejected: "today" must never follow the host zone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return nil, fmt.Errorf("timezone must be an explicit IANA name, got %q", timezone)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return loc, nil
}

// MidnightIn returns midnight of t's calendar date as observed in loc.
func MidnightIn(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// AddDays advances a midnight timestamp by whole calendar days.
// time.AddDate keeps the wall clock at midnight across DST transitions.
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// FormatDate renders a calendar date in the storage format.
func FormatDate(day time.Time) string {
	return day.Format(constants.DateFormat)
}

// ParseDateInLocation parses a date string (YYYY-MM-DD) as midnight in loc.
func ParseDateInLocation(dateStr string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(constants.DateFormat, dateStr)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// NormalizeDate accepts either a bare date or a timestamp whose first ten
// characters are the date (as some drivers return DATE columns) and returns YYYY-MM-DD.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(constants.DateFormat) {
		return "", fmt.Errorf("invalid date %q", s)
	}
	head := s[:len(constants.DateFormat)]
	if _, err := time.Parse(constants.DateFormat, head); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return head, nil
}

// ClockString renders minutes after midnight as HH:MM:SS.
func ClockString(minutes int) string {
	return fmt.Sprintf("%02d:%02d:00", minutes/60, minutes%60)
}

// ParseClockMinutes parses HH:MM or HH:MM:SS into minutes after midnight.
// Seconds must be zero; slot boundaries are whole minutes.
func ParseClockMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	var t time.Time
	var err error
	switch len(s) {
	case len(constants.DisplayTimeFormat):
		t, err = time.Parse(constants.DisplayTimeFormat, s)
	default:
		t, err = time.Parse(constants.TimeFormat, s)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if t.Second() != 0 {
		return 0, fmt.Errorf("invalid time %q: seconds must be zero", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseWeekdays parses a comma-separated list of weekdays.
// Names, three-letter abbreviations and numbers (0=Sunday, 6=Saturday) are accepted.
func ParseWeekdays(s string) ([]time.Weekday, error) {
	parts := strings.Split(s, ",")
	seen := make(map[time.Weekday]bool)
	var weekdays []time.Weekday

	dayMap := map[string]time.Weekday{
		"sun":       time.Sunday,
		"sunday":    time.Sunday,
		"mon":       time.Monday,
		"monday":    time.Monday,
		"tue":       time.Tuesday,
		"tuesday":   time.Tuesday,
		"wed":       time.Wednesday,
		"wednesday": time.Wednesday,
		"thu":       time.Thursday,
		"thursday":  time.Thursday,
		"fri":       time.Friday,
		"friday":    time.Friday,
		"sat":       time.Saturday,
		"saturday":  time.Saturday,
	}

	for _, part := range parts {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		wd, ok := dayMap[part]
		if !ok {
			num, err := strconv.Atoi(part)
			if err != nil || num < 0 || num > 6 {
				return nil, fmt.Errorf("invalid weekday: %s", part)
			}
			wd = time.Weekday(num)
		}
		if !seen[wd] {
			seen[wd] = true
			weekdays = append(weekdays, wd)
		}
	}

	if len(weekdays) == 0 {
		return nil, fmt.Errorf("no weekdays in %q", s)
	}

	sort.Slice(weekdays, func(i, j int) bool { return weekdays[i] < weekdays[j] })
	return weekdays, nil
}

// WeekdaySet is a lookup table of business weekdays
type WeekdaySet [7]bool

// NewWeekdaySet builds a set from a list of weekdays
func NewWeekdaySet(days []time.Weekday) WeekdaySet {
	var set WeekdaySet
	for _, d := range days {
		set[d] = true
	}
	return set
}

// Contains reports whether d is a business weekday
func (s WeekdaySet) Contains(d time.Weekday) bool {
	return s[d]
}

func (s WeekdaySet) String() string {
	var names []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s[d] {
			names = append(names, strings.ToLower(d.String()[:3]))
		}
	}
	return strings.Join(names, ",")
}
