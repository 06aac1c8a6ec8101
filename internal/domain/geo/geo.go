// Package geo holds the distance geometry shared by every dispatch
// component: great-circle distance, the road inflation model and the
// normalized keys used by the route cache.
package geo

import (
	"fmt"
	"math"

	"github.com/okian/photodispatch/internal/domain/model"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b model.Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// Estimate is a road distance and drive time.
type Estimate struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin int     `json:"duration_min"`
}

// Model turns straight-line distance into a road estimate.
type Model struct {
	// RoadFactor inflates straight-line distance to road distance.
	RoadFactor float64
	// SpeedKmh is the average urban driving speed.
	SpeedKmh float64
	// OverheadMin is added to every trip (parking, access).
	OverheadMin float64
}

// DefaultModel is the empirically tuned urban model.
func DefaultModel() Model {
	return Model{RoadFactor: 1.3, SpeedKmh: 25, OverheadMin: 5}
}

// FromStraightLine applies the model to a straight-line distance. Distance
// is rounded to two decimals and duration is rounded up to whole minutes.
func (m Model) FromStraightLine(km float64) Estimate {
	road := km * m.RoadFactor
	return Estimate{
		DistanceKm:  Round(road, 2),
		DurationMin: int(math.Ceil(road/m.SpeedKmh*60 + m.OverheadMin)),
	}
}

// Between estimates the trip from a to b.
func (m Model) Between(a, b model.Point) Estimate {
	return m.FromStraightLine(Haversine(a, b))
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// CoordinateKey renders p rounded to four decimals (about 11 m).
func CoordinateKey(p model.Point) string {
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lng)
}

// ClusterKey is the normalized neighborhood name.
func ClusterKey(neighborhood string) string {
	return model.NormalizeName(neighborhood)
}
