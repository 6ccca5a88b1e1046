// Package timetable turns raw timetable rows into weekly recurring event
// descriptors. Everything here is pure: configuration comes in through
// Options and Resolver, never through package globals.
package timetable

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ttcal/internal/model"
)

// HourMarker is the token that marks a duration as a number of hours.
const HourMarker = "hr"

// Row-level failures. Each is wrapped with the offending text and reported
// per row; the rest of the file is still converted.
var (
	// ErrNoSubjectCode means the subject code cell has no letters+digits prefix.
	ErrNoSubjectCode = errors.New("subject code not found")
	// ErrBadTime means the time cell is not HH:MM or HH:MM:SS.
	ErrBadTime = errors.New("invalid time of day")
	// ErrBadDate means a date range is malformed or the dates cell is blank.
	ErrBadDate = errors.New("invalid date")
)

var subjectCodeRe = regexp.MustCompile(`^([A-Za-z]+\d+)`)

// ParseSubjectCode extracts the leading letters+digits code, e.g. "COMP3308"
// from "COMP3308_S1C_ND_CC".
func ParseSubjectCode(text string) (string, error) {
	m := subjectCodeRe.FindStringSubmatch(text)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrNoSubjectCode, text)
	}
	return m[1], nil
}

// ParseDuration converts "2 hr" into 120 minutes. Text without the hour
// marker, or whose leading field is not a number, yields 0.
func ParseDuration(text string) int {
	if !strings.Contains(text, HourMarker) {
		return 0
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	hours, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || hours < 0 {
		return 0
	}
	return int(math.Round(hours * 60))
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(text string) (model.TimeOfDay, error) {
	if len(text) == 5 {
		text += ":00"
	}
	t, err := time.Parse("15:04:05", text)
	if err != nil {
		return model.TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTime, text)
	}
	return model.TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// ParseDayDate parses a "day/month" token against year. Any failure is
// retried once with year+1; the retry's error is returned if it fails too.
// The result is midnight of that date in loc.
func ParseDayDate(text string, year int, loc *time.Location) (time.Time, error) {
	d, err := parseDayMonthYear(text, year, loc)
	if err == nil {
		return d, nil
	}
	d, err = parseDayMonthYear(text, year+1, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrBadDate, text, err)
	}
	return d, nil
}

func parseDayMonthYear(text string, year int, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2/1/2006", text+"/"+strconv.Itoa(year), loc)
}

// SplitDateRanges splits the raw dates cell on commas and trims each part.
// Empty parts are kept; Expand skips them along with other separator-less
// fragments.
func SplitDateRanges(text string) []string {
	parts := strings.Split(text, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// ParseDateRange parses a "D/M - D/M" fragment. ok is false when the
// fragment has no "-" at all, which callers treat as a fragment to skip
// rather than a failure.
func ParseDateRange(fragment string, year int, loc *time.Location) (r model.DateRange, ok bool, err error) {
	if !strings.Contains(fragment, "-") {
		return model.DateRange{}, false, nil
	}
	bounds := strings.Split(fragment, "-")
	if len(bounds) != 2 {
		return model.DateRange{}, true, fmt.Errorf("%w: range %q", ErrBadDate, fragment)
	}

	start, err := ParseDayDate(strings.TrimSpace(bounds[0]), year, loc)
	if err != nil {
		return model.DateRange{}, true, err
	}
	end, err := ParseDayDate(strings.TrimSpace(bounds[1]), year, loc)
	if err != nil {
		return model.DateRange{}, true, err
	}
	return model.DateRange{Start: start, End: end}, true, nil
}
