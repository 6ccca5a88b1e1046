package timetable

import (
	"strings"

	"ttcal/internal/model"
)

// OnlineClassroom is the classroom label used when the location names no room.
const OnlineClassroom = "Online"

// Segment positions inside a raw location such as
// "CC.Camperdown.J12.Abercrombie Building.2150".
const (
	buildingSegment  = 3
	classroomSegment = 4
)

// Resolver derives the venue address and classroom label from a
// hierarchical location string.
type Resolver struct {
	// Delimiter separates location segments.
	Delimiter string
	// Overrides maps a raw building name to the name used in the address.
	Overrides map[string]string
	// Suffix is appended to the building name, e.g. ", Sydney".
	Suffix string
}

func (r Resolver) split(raw string) []string {
	delim := r.Delimiter
	if delim == "" {
		delim = "."
	}
	return strings.Split(raw, delim)
}

// StandardizeAddress returns the building address, or ok=false when the
// location has fewer than four segments (online classes and the like).
func (r Resolver) StandardizeAddress(raw string) (string, bool) {
	return r.address(r.split(raw))
}

func (r Resolver) address(parts []string) (string, bool) {
	if len(parts) <= buildingSegment {
		return "", false
	}
	building := parts[buildingSegment]
	if canonical, ok := r.Overrides[building]; ok {
		building = canonical
	}
	return building + r.Suffix, true
}

// ClassroomLabel returns the room segment, or OnlineClassroom when there is
// none.
func (r Resolver) ClassroomLabel(raw string) string {
	return r.classroom(r.split(raw))
}

func (r Resolver) classroom(parts []string) string {
	if len(parts) <= classroomSegment {
		return OnlineClassroom
	}
	return parts[classroomSegment]
}

// Resolve performs both lookups on a single split of raw. It returns nil for
// an empty location or the "-" placeholder.
func (r Resolver) Resolve(raw string) *model.Location {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return nil
	}
	parts := r.split(raw)
	addr, _ := r.address(parts)
	return &model.Location{
		Address:   addr,
		Classroom: r.classroom(parts),
	}
}
