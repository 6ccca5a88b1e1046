package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "ttcal/internal/log"
	"ttcal/internal/model"
)

// ParseDocument reads a generated calendar back into descriptors, in
// document order. fallback is used for DATE-TIME values without a TZID.
//
//   - It relies on the underlying library for line unfolding, property
//     splitting and TEXT unescaping.
//   - Only the weekly RRULE shape written by Build is understood; other
//     rules are rejected per event.
//   - An event that fails to parse is logged and skipped.
func ParseDocument(body []byte, fallback *time.Location) ([]model.Descriptor, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if fallback == nil {
		fallback = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	out := make([]model.Descriptor, 0)
	for _, comp := range cal.Events() {
		d, perr := parseVEvent(comp, fallback)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		out = append(out, d)
	}

	appLog.Debug("ics parse completed", "event_count", len(out))
	return out, nil
}

func parseVEvent(ve *ical.VEvent, fallback *time.Location) (model.Descriptor, error) {
	var out model.Descriptor

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	start, loc, err := propertyTime(ve.GetProperty(ical.ComponentPropertyDtStart), fallback)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	end, _, err := propertyTime(ve.GetProperty(ical.ComponentPropertyDtEnd), fallback)
	if err != nil {
		return out, fmt.Errorf("DTEND: %w", err)
	}
	out.Start = start
	out.End = end

	rruleProp := ve.GetProperty(ical.ComponentPropertyRrule)
	if rruleProp == nil {
		return out, errors.New("missing RRULE")
	}
	opt, err := rrule.StrToROptionInLocation(rruleProp.Value, loc)
	if err != nil {
		return out, fmt.Errorf("RRULE: %w", err)
	}
	if opt.Freq != rrule.WEEKLY || len(opt.Byweekday) != 1 || opt.Until.IsZero() {
		return out, fmt.Errorf("RRULE: unsupported rule %q", rruleProp.Value)
	}
	out.Until = opt.Until.In(loc)
	out.Weekday = opt.Byweekday[0].String()

	return out, nil
}

// propertyTime parses a DATE-TIME property, honouring its TZID parameter.
// It also returns the zone the value was interpreted in.
func propertyTime(p *ical.IANAProperty, fallback *time.Location) (time.Time, *time.Location, error) {
	if p == nil {
		return time.Time{}, nil, errors.New("missing property")
	}
	loc := fallback
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		l, err := time.LoadLocation(tzs[0])
		if err != nil {
			return time.Time{}, nil, err
		}
		loc = l
	}
	t, err := parseICSTime(p.Value, loc)
	return t, loc, err
}

// parseICSTime parses a basic ICS date/date-time string into time.Time.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation(LocalLayout, v, loc)
	}

	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}
