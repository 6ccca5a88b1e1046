package model

import "time"

// RawRow is one timetable record as read from a spreadsheet. All fields are
// the verbatim cell text.
type RawRow struct {
	File  string // base name of the originating file
	Index int    // 1-based spreadsheet row number, for error messages

	SubjectCode string
	Description string
	Group       string
	Activity    string
	Day         string
	Time        string
	Campus      string
	Location    string
	Duration    string
	Dates       string
}

// TimeOfDay is a wall clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// On combines the clock time with the calendar date of d in loc.
func (t TimeOfDay) On(d time.Time, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, loc)
}

// Location is the resolved venue of a session.
type Location struct {
	// Address is the standardized building address. Empty when the raw
	// location has too few segments to name a building.
	Address string
	// Classroom is the room label, or "Online".
	Classroom string
}

// Session is a normalized timetable row.
type Session struct {
	SubjectCode     string
	Group           string
	StartTime       TimeOfDay
	DurationMinutes int
	Location        *Location
	Description     string
}

// DateRange bounds one continuous weekly series. Both ends are dates at
// midnight; the time component carries no meaning.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Descriptor is one weekly recurring calendar event.
type Descriptor struct {
	UID         string
	Summary     string
	Description string
	Location    string // empty when no address was resolved

	// Start / End of the first occurrence, in the configured zone.
	Start time.Time
	End   time.Time
	// Until is the last permitted occurrence; same clock time as Start.
	Until time.Time

	// Weekday is the two-letter RFC 5545 code of Start (MO, TU, ...).
	Weekday string
}

// Occurrence represents a single concrete meeting of a Descriptor.
type Occurrence struct {
	UID      string
	Summary  string
	Location string

	Start time.Time
	End   time.Time
}
