package sensors

import (
	"math"

	geo "github.com/kellydunn/golang-geo"
)

// Projector converts WGS84 readings into the local Cartesian frame used by
// the rest of the engine, a local equirectangular projection anchored at a
// configured reference point. The reference point is held as a golang-geo
// Point; the projection itself is computed directly from meters-per-degree
// scale factors.
type Projector struct {
	ref               *geo.Point
	metersPerDegreeLat float64
	metersPerDegreeLon float64
}

// earthRadiusMeters is the WGS84 mean radius used for the equirectangular
// approximation, matching the scale golang-geo's GreatCircleDistance uses.
const earthRadiusMeters = 6371000.0

// NewProjector returns a Projector anchored at (refLatitude, refLongitude).
func NewProjector(refLatitude, refLongitude float64) *Projector {
	ref := geo.NewPoint(refLatitude, refLongitude)
	latRad := refLatitude * math.Pi / 180
	return &Projector{
		ref:                ref,
		metersPerDegreeLat: (math.Pi / 180) * earthRadiusMeters,
		metersPerDegreeLon: (math.Pi / 180) * earthRadiusMeters * math.Cos(latRad),
	}
}

// ToCartesian projects a WGS84 (lat, lon) reading to local (x, y) meters
// relative to the projector's reference point.
func (p *Projector) ToCartesian(lat, lon float64) (x, y float64) {
	x = (lon - p.ref.Lng()) * p.metersPerDegreeLon
	y = (lat - p.ref.Lat()) * p.metersPerDegreeLat
	return x, y
}

// CorrectHeading rotates a north-referenced heading by -pi and wraps it to
// (-pi, pi], matching the vehicle-frame convention used everywhere else in
// the engine.
func CorrectHeading(northReferenced float64) float64 {
	h := northReferenced - math.Pi
	for h > math.Pi {
		h -= 2 * math.Pi
	}
	for h <= -math.Pi {
		h += 2 * math.Pi
	}
	return h
}
