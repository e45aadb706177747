package reminder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DayNames maps weekday numbers (0 = Sunday) to display names.
var DayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// BuildCronExpr renders a 5-field cron expression for a weekly schedule:
// "M H * * d0,d1,...". Minute and hour are unpadded base-10; days are
// sorted ascending and comma-joined, 0 = Sunday.
func BuildCronExpr(days []int, hour, minute int) string {
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	parts := make([]string, 0, len(sorted))
	for _, d := range sorted {
		parts = append(parts, strconv.Itoa(d))
	}
	return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(parts, ","))
}

// ParseTime parses strict "HH:MM" (00-23 / 00-59). Anything else is an error.
func ParseTime(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// ValidTime reports whether s is a well-formed "HH:MM" clock time.
func ValidTime(s string) bool {
	_, _, err := ParseTime(s)
	return err == nil
}

// ValidDays reports whether days is a non-empty list of weekday numbers
// in [0,6].
func ValidDays(days []int) bool {
	if len(days) == 0 {
		return false
	}
	for _, d := range days {
		if d < 0 || d > 6 {
			return false
		}
	}
	return true
}

// ParseDays parses a comma-separated weekday list like "1,2,3,4,5" into a
// sorted, deduplicated set.
func ParseDays(s string) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	seen := map[int]bool{}
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid day %q", p)
		}
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("day %d out of range 0-6", d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no days given")
	}
	sort.Ints(days)
	return days, nil
}

// ParseDate accepts "YYYY-MM-DD" or "DD-MM-YYYY" and rejects non-existent
// calendar dates. The returned time is midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02-01-2006"} {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or DD-MM-YYYY", s)
}

// CombineDateTime builds the absolute fire time for a one-shot reminder
// from a calendar date and an "HH:MM" clock time in loc.
func CombineDateTime(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	h, m, err := ParseTime(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, loc), nil
}

// DaysToNames renders a weekday set for display, e.g. "Monday, Tuesday".
func DaysToNames(days []int) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(DayNames) {
			names = append(names, DayNames[d])
		}
	}
	return strings.Join(names, ", ")
}
