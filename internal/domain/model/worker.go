package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location describes where a job happens or where a worker is based.
type Location struct {
	Address      string   `json:"address,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
}

// Point returns the coordinates when both are known.
func (l Location) Point() (Point, bool) {
	if l.Lat == nil || l.Lng == nil {
		return Point{}, false
	}
	return Point{Lat: *l.Lat, Lng: *l.Lng}, true
}

// HasCoordinates reports whether lat and lng are both set.
func (l Location) HasCoordinates() bool {
	_, ok := l.Point()
	return ok
}

// SetPoint stores p as the location's coordinates.
func (l *Location) SetPoint(p Point) {
	lat, lng := p.Lat, p.Lng
	l.Lat, l.Lng = &lat, &lng
}

// NormalizeName canonicalizes a neighborhood name for comparison and keys.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Capabilities is a worker's skill set. The Wildcard entry means every service.
type Capabilities []ServiceID

// IsWildcard reports whether the set contains the wildcard token.
func (c Capabilities) IsWildcard() bool {
	for _, s := range c {
		if s.IsWildcard() {
			return true
		}
	}
	return false
}

// Has reports whether the worker performs service s.
func (c Capabilities) Has(s ServiceID) bool {
	if c.IsWildcard() {
		return true
	}
	for _, own := range c {
		if own == s {
			return true
		}
	}
	return false
}

// HasAll reports whether every requested service is covered. An empty
// request is always satisfied.
func (c Capabilities) HasAll(services []ServiceID) bool {
	for _, s := range services {
		if !c.Has(s) {
			return false
		}
	}
	return true
}

// HasFamily reports whether any owned service belongs to family f.
func (c Capabilities) HasFamily(f Family) bool {
	if c.IsWildcard() {
		return true
	}
	for _, own := range c {
		for _, of := range own.Families() {
			if of == f {
				return true
			}
		}
	}
	return false
}

// HasFamiliesFor reports whether every family required by services is
// owned. With failOpen set, an empty capability set satisfies anything.
func (c Capabilities) HasFamiliesFor(services []ServiceID, failOpen bool) bool {
	if len(c) == 0 && failOpen {
		return true
	}
	for _, s := range services {
		for _, f := range s.Families() {
			if !c.HasFamily(f) {
				return false
			}
		}
	}
	return true
}

// NeighborhoodSet is a set of normalized neighborhood names, or every
// neighborhood when built from the wildcard token.
type NeighborhoodSet struct {
	all   bool
	names map[string]struct{}
}

// NewNeighborhoodSet builds a set; blank names are ignored.
func NewNeighborhoodSet(names ...string) NeighborhoodSet {
	s := NeighborhoodSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), Wildcard) {
			s.all = true
			continue
		}
		if key := NormalizeName(n); key != "" {
			s.names[key] = struct{}{}
		}
	}
	return s
}

// All reports whether the set is the wildcard.
func (s NeighborhoodSet) All() bool { return s.all }

// Len is the number of explicit names.
func (s NeighborhoodSet) Len() int { return len(s.names) }

// Contains matches case-insensitively after trimming.
func (s NeighborhoodSet) Contains(neighborhood string) bool {
	if s.all {
		return true
	}
	_, ok := s.names[NormalizeName(neighborhood)]
	return ok
}

// Names returns the sorted normalized names, with the wildcard first when set.
func (s NeighborhoodSet) Names() []string {
	out := make([]string, 0, len(s.names)+1)
	if s.all {
		out = append(out, Wildcard)
	}
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return append(out, names...)
}

func (s NeighborhoodSet) union(o NeighborhoodSet) NeighborhoodSet {
	u := NeighborhoodSet{all: s.all || o.all, names: make(map[string]struct{}, len(s.names)+len(o.names))}
	for n := range s.names {
		u.names[n] = struct{}{}
	}
	for n := range o.names {
		u.names[n] = struct{}{}
	}
	return u
}

// CoverageKind tags the stored shape of a coverage value.
type CoverageKind int

const (
	// CoverageFlat is the legacy shape: one neighborhood set for every service.
	CoverageFlat CoverageKind = iota
	// CoveragePerService scopes neighborhoods per service id.
	CoveragePerService
)

// Coverage is a tagged union over the two stored shapes. Consumers go
// through For/Covers/CoversAny and never inspect the shape themselves.
type Coverage struct {
	kind       CoverageKind
	flat       NeighborhoodSet
	perService map[ServiceID]NeighborhoodSet
}

// FlatCoverage builds the legacy shape.
func FlatCoverage(neighborhoods ...string) Coverage {
	return Coverage{kind: CoverageFlat, flat: NewNeighborhoodSet(neighborhoods...)}
}

// PerServiceCoverage builds the per-service shape. A Wildcard key applies
// its neighborhoods to every service.
func PerServiceCoverage(m map[ServiceID][]string) Coverage {
	c := Coverage{kind: CoveragePerService, perService: make(map[ServiceID]NeighborhoodSet, len(m))}
	for svc, names := range m {
		key := svc
		if svc.IsWildcard() {
			key = Wildcard
		}
		c.perService[key] = c.perService[key].union(NewNeighborhoodSet(names...))
	}
	return c
}

// Kind returns the stored shape.
func (c Coverage) Kind() CoverageKind { return c.kind }

// For normalizes either shape into the neighborhood set authorized for one
// service.
func (c Coverage) For(service ServiceID) NeighborhoodSet {
	if c.kind == CoverageFlat {
		return c.flat
	}
	return c.perService[service].union(c.perService[Wildcard])
}

// Covers reports whether the worker travels to neighborhood for service.
func (c Coverage) Covers(service ServiceID, neighborhood string) bool {
	return c.For(service).Contains(neighborhood)
}

// CoversAny reports whether neighborhood is authorized for at least one of
// services. With no services, any authorization counts.
func (c Coverage) CoversAny(services []ServiceID, neighborhood string) bool {
	if len(services) == 0 {
		if c.kind == CoverageFlat {
			return c.flat.Contains(neighborhood)
		}
		for _, set := range c.perService {
			if set.Contains(neighborhood) {
				return true
			}
		}
		return false
	}
	for _, s := range services {
		if c.Covers(s, neighborhood) {
			return true
		}
	}
	return false
}

// MarshalJSON writes a flat coverage as an array and per-service coverage
// as an object, matching the stored shapes.
func (c Coverage) MarshalJSON() ([]byte, error) {
	if c.kind == CoverageFlat {
		return json.Marshal(c.flat.Names())
	}
	out := make(map[string][]string, len(c.perService))
	for svc, set := range c.perService {
		out[string(svc)] = set.Names()
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts an array, an object or null.
func (c *Coverage) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*c = FlatCoverage()
		return nil
	case trimmed[0] == '[':
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return fmt.Errorf("%w: coverage array: %v", ErrInvalidInput, err)
		}
		*c = FlatCoverage(names...)
		return nil
	case trimmed[0] == '{':
		var m map[ServiceID][]string
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fmt.Errorf("%w: coverage map: %v", ErrInvalidInput, err)
		}
		*c = PerServiceCoverage(m)
		return nil
	default:
		return fmt.Errorf("%w: coverage must be an array or an object", ErrInvalidInput)
	}
}

// Worker is a field-service provider.
type Worker struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Email          string       `json:"email,omitempty"`
	Color          string       `json:"color,omitempty"`
	Active         bool         `json:"active"`
	Capabilities   Capabilities `json:"capabilities"`
	Coverage       Coverage     `json:"coverage"`
	Base           *Location    `json:"base,omitempty"`
	TravelRadiusKm *float64     `json:"travel_radius_km,omitempty"`
}
