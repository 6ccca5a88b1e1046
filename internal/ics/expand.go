package ics

import (
	"errors"

	"github.com/teambition/rrule-go"

	appLog "ttcal/internal/log"
	"ttcal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// MaxOccurrencesPerEvent is a safety cap against malformed ranges that
	// span years. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded occurrences and optionally
// information about truncation.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences lists the concrete meetings of each descriptor, the
// same way a calendar client would read DTSTART + RRULE. Descriptor order is
// kept; within a descriptor occurrences are chronological.
func ExpandOccurrences(descriptors []model.Descriptor, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	for _, d := range descriptors {
		occ, hitCap, err := expandDescriptor(d, cfg.MaxOccurrencesPerEvent)
		if err != nil {
			return result, err
		}
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, d.UID)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", d.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		result.Occurrences = append(result.Occurrences, occ...)
	}

	return result, nil
}

// CountOccurrences returns how many weekly meetings d describes.
func CountOccurrences(d model.Descriptor) (int, error) {
	r, err := weeklyRule(d)
	if err != nil {
		return 0, err
	}
	return len(r.All()), nil
}

func weeklyRule(d model.Descriptor) (*rrule.RRule, error) {
	wd := d.Start.Weekday()
	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   d.Start,
		Until:     d.Until,
		Byweekday: []rrule.Weekday{weekdays[wd]},
	})
}

func expandDescriptor(d model.Descriptor, limit int) ([]model.Occurrence, bool, error) {
	r, err := weeklyRule(d)
	if err != nil {
		return nil, false, err
	}

	// Iterate rather than All() so a runaway range stops at the cap.
	out := make([]model.Occurrence, 0)
	dur := d.End.Sub(d.Start)
	next := r.Iterator()
	for {
		start, ok := next()
		if !ok {
			return out, false, nil
		}
		if len(out) == limit {
			return out, true, nil
		}
		out = append(out, model.Occurrence{
			UID:      d.UID,
			Summary:  d.Summary,
			Location: d.Location,
			Start:    start,
			End:      start.Add(dur),
		})
	}
}

var weekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}
