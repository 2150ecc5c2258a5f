// internal/service/filter/filter.go

// Package filter derives the visible subset of the room directory from a
// free-text query, a radius and a reference position. It is a pure query:
// no state, no caching, and the input ordering is preserved.
package filter

import (
	"strings"

	"geochat/internal/domain/geo"
	"geochat/internal/domain/room"
)

// Visible returns the rooms passing both the text and radius predicates,
// in the order given.
//
// The query is split on commas into independent lower-cased terms; a room
// passes when its lower-cased name contains at least one term. An empty
// query matches all rooms.
//
// The radius predicate applies only when radiusKm is positive and a
// reference position is known. With an unknown reference the predicate is
// vacuously true, so rooms are not hidden before geolocation resolves.
func Visible(rooms []room.Room, query string, radiusKm float64, ref *geo.Location) []room.Room {
	terms := splitTerms(query)
	out := make([]room.Room, 0, len(rooms))
	for _, r := range rooms {
		if !matchesName(r.Name, terms) {
			continue
		}
		if radiusKm > 0 && ref != nil && !geo.WithinRadius(*ref, r.Location(), radiusKm) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func splitTerms(query string) []string {
	var terms []string
	for _, t := range strings.Split(query, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func matchesName(name string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
