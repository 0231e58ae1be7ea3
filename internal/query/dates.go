package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/tracker/internal/model"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05-0700"
)

// parseStart parses a date or date-time. A date means the start of that day
// in loc.
func parseStart(field, s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, ok := parseDateTime(s); ok {
		return t, nil
	}
	if d, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return d, nil
	}
	return time.Time{}, model.Invalid(field, "'%s' cannot be parsed as either a date or date+time", s)
}

// parseEnd is parseStart for exclusive upper bounds: a date means the start
// of the following day.
func parseEnd(field, s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, ok := parseDateTime(s); ok {
		return t, nil
	}
	if d, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return d.AddDate(0, 0, 1), nil
	}
	return time.Time{}, model.Invalid(field, "'%s' cannot be parsed as either a date or date+time", s)
}

func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range []string{dateTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var periodPattern = regexp.MustCompile(`^(?:(\d+)y)?(?:(\d+)m)?(?:(\d+)w)?(?:(\d+)d)?$`)

// subtractPeriod parses a period such as "1y2m3w4d" and returns now minus
// that period.
func subtractPeriod(field, period string, now time.Time) (time.Time, error) {
	m := periodPattern.FindStringSubmatch(strings.ToLower(period))
	if period == "" || m == nil {
		return time.Time{}, model.Invalid(field, "'%s' is not a valid period, expected a value like 1y2m3w4d", period)
	}
	n := func(i int) int {
		if m[i] == "" {
			return 0
		}
		v, _ := strconv.Atoi(m[i])
		return v
	}
	return now.AddDate(-n(1), -n(2), -(7*n(3) + n(4))), nil
}
