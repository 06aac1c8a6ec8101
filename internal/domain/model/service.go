package model

import (
	"fmt"
	"sort"
	"strings"
)

// ServiceID identifies a bookable service.
type ServiceID string

const (
	ServicePhoto           ServiceID = "photo"
	ServiceVideoLandscape  ServiceID = "video_landscape"
	ServiceVideoPortrait   ServiceID = "video_portrait"
	ServiceDronePhoto      ServiceID = "drone_photo"
	ServiceDronePhotoVideo ServiceID = "drone_photo_video"
	ServiceTour360         ServiceID = "tour_360"
)

// Wildcard is the token meaning "all services" in a capability set and
// "all neighborhoods" in coverage.
const Wildcard = "ALL"

// Family groups services by the equipment or skill they need.
type Family string

const (
	FamilyPhoto Family = "photo"
	FamilyVideo Family = "video"
	FamilyDrone Family = "drone"
	FamilyTour  Family = "tour"
)

// KnownServices lists the closed service catalogue.
var KnownServices = []ServiceID{
	ServicePhoto, ServiceVideoLandscape, ServiceVideoPortrait,
	ServiceDronePhoto, ServiceDronePhotoVideo, ServiceTour360,
}

// Families returns the families a service requires. An unknown service
// requires a family named after itself.
func (s ServiceID) Families() []Family {
	switch s {
	case ServicePhoto:
		return []Family{FamilyPhoto}
	case ServiceVideoLandscape, ServiceVideoPortrait:
		return []Family{FamilyVideo}
	case ServiceDronePhoto:
		return []Family{FamilyDrone}
	case ServiceDronePhotoVideo:
		return []Family{FamilyDrone, FamilyVideo}
	case ServiceTour360:
		return []Family{FamilyTour}
	default:
		return []Family{Family(s)}
	}
}

// IsWildcard reports whether the id is the wildcard token.
func (s ServiceID) IsWildcard() bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), Wildcard)
}

// Known reports whether the id is part of the catalogue.
func (s ServiceID) Known() bool {
	for _, k := range KnownServices {
		if k == s {
			return true
		}
	}
	return false
}

// ParseServices splits a comma separated list, trimming blanks and
// dropping duplicates while keeping order.
func ParseServices(raw string) []ServiceID {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[ServiceID]bool)
	var out []ServiceID
	for _, part := range strings.Split(raw, ",") {
		id := ServiceID(strings.TrimSpace(part))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ValidateServices rejects ids outside the catalogue.
func ValidateServices(ids []ServiceID) error {
	var unknown []string
	for _, id := range ids {
		if !id.Known() {
			unknown = append(unknown, string(id))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown services %s", ErrInvalidInput, strings.Join(unknown, ","))
	}
	return nil
}

// Catalog holds per-service durations in minutes.
type Catalog struct {
	Durations map[ServiceID]int
	// Fallback is used for ids missing from Durations.
	Fallback int
}

// NewCatalog converts a string keyed duration map.
func NewCatalog(durations map[string]int, fallback int) Catalog {
	c := Catalog{Durations: make(map[ServiceID]int, len(durations)), Fallback: fallback}
	for k, v := range durations {
		c.Durations[ServiceID(k)] = v
	}
	return c
}

// Duration returns the minutes for one service.
func (c Catalog) Duration(id ServiceID) int {
	if d, ok := c.Durations[id]; ok {
		return d
	}
	return c.Fallback
}

// Total sums the durations of ids.
func (c Catalog) Total(ids []ServiceID) int {
	total := 0
	for _, id := range ids {
		total += c.Duration(id)
	}
	return total
}
