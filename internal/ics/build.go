package ics

import (
	"bytes"
	"io"
	"runtime"

	ical "github.com/arran4/golang-ical"

	"ttcal/internal/model"
)

// LocalLayout is the floating DATE-TIME form used for DTSTART, DTEND and
// UNTIL. The zone is carried by the TZID parameter instead.
const LocalLayout = "20060102T150405"

// Envelope is the fixed calendar-level header of a document.
type Envelope struct {
	ProductID    string
	CalendarName string
	// TimeZone is the IANA zone id used for TZID and X-WR-TIMEZONE.
	TimeZone string
}

// Build assembles a calendar from descriptors, preserving their order.
func Build(descriptors []model.Descriptor, env Envelope) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetVersion("2.0")
	cal.SetProductId(env.ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(env.CalendarName)
	cal.SetXWRTimezone(env.TimeZone)

	for _, d := range descriptors {
		addEvent(cal, d, env.TimeZone)
	}
	return cal
}

func addEvent(cal *ical.Calendar, d model.Descriptor, tzid string) {
	tz := &ical.KeyValues{Key: "TZID", Value: []string{tzid}}

	ev := cal.AddEvent(d.UID)
	if d.Location != "" {
		ev.SetLocation(d.Location)
	}
	ev.SetDescription(d.Description)
	ev.SetProperty(ical.ComponentPropertyDtStart, d.Start.Format(LocalLayout), tz)
	ev.SetProperty(ical.ComponentPropertyDtEnd, d.End.Format(LocalLayout), tz)
	ev.AddRrule(RRule(d))
	ev.SetSummary(d.Summary)
	ev.SetProperty(ical.ComponentPropertyTransp, "OPAQUE")
}

// RRule renders the weekly recurrence of d. UNTIL is written in the same
// floating local form as DTSTART.
func RRule(d model.Descriptor) string {
	return "FREQ=WEEKLY;BYDAY=" + d.Weekday + ";UNTIL=" + d.Until.Format(LocalLayout)
}

// LineEnding is the platform's line terminator, used for every line of a
// written document.
var LineEnding = lineEndingFor(runtime.GOOS)

func lineEndingFor(goos string) ical.WithNewLine {
	if goos == "windows" {
		return ical.WithNewLineWindows
	}
	return ical.WithNewLineUnix
}

// Write serializes the document built from descriptors to w.
func Write(w io.Writer, descriptors []model.Descriptor, env Envelope) error {
	return Build(descriptors, env).SerializeTo(w, LineEnding)
}

// Render returns the serialized document.
func Render(descriptors []model.Descriptor, env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, descriptors, env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
