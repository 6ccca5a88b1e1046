package timetable

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "ttcal/internal/log"
	"ttcal/internal/model"
)

// Options is the immutable configuration of an Engine.
type Options struct {
	// Year is the academic year the term begins in.
	Year int
	// Location is the fixed zone all events are anchored to.
	Location *time.Location
	// UIDDomain is the right-hand side of every generated UID.
	UIDDomain string
	Resolver  Resolver
	// NewUID generates the left-hand side of a UID. Defaults to uuid.NewString.
	NewUID func() string
}

// RowError identifies a skipped row.
type RowError struct {
	File  string
	Index int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("file %s row %d: %v", e.File, e.Index, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Engine converts raw rows into recurring event descriptors.
type Engine struct {
	opts Options
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Location == nil {
		return nil, errors.New("timetable: location is required")
	}
	if opts.Year <= 0 {
		return nil, fmt.Errorf("timetable: invalid year %d", opts.Year)
	}
	if opts.NewUID == nil {
		opts.NewUID = uuid.NewString
	}
	return &Engine{opts: opts}, nil
}

// Row normalizes and expands a single row.
func (e *Engine) Row(row model.RawRow) ([]model.Descriptor, error) {
	session, err := Normalize(row, e.opts.Resolver)
	if err != nil {
		return nil, err
	}
	return Expand(session, row.Dates, e.opts.Year, e.opts.Location, e.uid)
}

// Rows converts rows in order. A failing row is recorded and skipped; it
// never stops the rows after it.
func (e *Engine) Rows(rows []model.RawRow) ([]model.Descriptor, []*RowError) {
	var (
		out  []model.Descriptor
		errs []*RowError
	)
	for _, row := range rows {
		descs, err := e.Row(row)
		if err != nil {
			rerr := &RowError{File: row.File, Index: row.Index, Err: err}
			appLog.Error("row skipped", err, "file", row.File, "row", row.Index)
			errs = append(errs, rerr)
			continue
		}
		out = append(out, descs...)
	}
	return out, errs
}

func (e *Engine) uid() string {
	return e.opts.NewUID() + "@" + e.opts.UIDDomain
}

// Normalize validates and normalizes one raw row.
func Normalize(row model.RawRow, resolver Resolver) (model.Session, error) {
	code, err := ParseSubjectCode(row.SubjectCode)
	if err != nil {
		return model.Session{}, err
	}
	start, err := ParseTimeOfDay(strings.TrimSpace(row.Time))
	if err != nil {
		return model.Session{}, err
	}

	s := model.Session{
		SubjectCode:     code,
		Group:           strings.TrimSpace(row.Group),
		StartTime:       start,
		DurationMinutes: ParseDuration(row.Duration),
		Location:        resolver.Resolve(row.Location),
		Description:     row.Description,
	}
	if s.Location != nil && s.Location.Classroom != "" {
		s.Description = s.Description + " \n" + s.Location.Classroom
	}
	return s, nil
}

// Expand emits one weekly descriptor per valid date range in rawDates, in
// source order. Fragments without a "-" are skipped; a fragment with an
// unparsable date, or a blank dates cell, fails the whole row.
func Expand(s model.Session, rawDates string, year int, loc *time.Location, newUID func() string) ([]model.Descriptor, error) {
	if strings.TrimSpace(rawDates) == "" {
		return nil, fmt.Errorf("%w: dates missing", ErrBadDate)
	}

	var out []model.Descriptor

	for _, fragment := range SplitDateRanges(rawDates) {
		dr, ok, err := ParseDateRange(fragment, year, loc)
		if err != nil {
			return nil, err
		}
		if !ok {
			appLog.Debug("date fragment skipped", "subject", s.SubjectCode, "fragment", fragment)
			continue
		}

		start := s.StartTime.On(dr.Start, loc)
		d := model.Descriptor{
			UID:         newUID(),
			Summary:     s.SubjectCode + "-" + s.Group,
			Description: s.Description,
			Start:       start,
			End:         start.Add(time.Duration(s.DurationMinutes) * time.Minute),
			Until:       s.StartTime.On(dr.End, loc),
			Weekday:     WeekdayCode(start.Weekday()),
		}
		if s.Location != nil {
			d.Location = s.Location.Address
		}
		out = append(out, d)
	}
	return out, nil
}

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// RRuleWeekday maps a time.Weekday onto rrule-go's weekday.
func RRuleWeekday(wd time.Weekday) rrule.Weekday {
	return rruleWeekdays[wd]
}

// WeekdayCode returns the two-letter BYDAY code for wd.
func WeekdayCode(wd time.Weekday) string {
	w := RRuleWeekday(wd)
	return w.String()
}
