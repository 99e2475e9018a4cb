// Package geometry implements the spherical-to-Cartesian and local-to-global
// transforms used by the cone SLAM engine.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// LidarDistToCoG is the default fixed offset between the lidar origin and the
// vehicle's centre of gravity, in meters. Exposed as a field on Transformer so
// it can be overridden from configuration instead of hard-coded, per the
// "vehicle-frame offset" design note.
const LidarDistToCoG = 1.5

// Observation is a single cone reading in the sensor frame, degrees for
// Azimuth and Zenith as delivered by the perception front-end.
type Observation struct {
	Azimuth float64 // degrees
	Zenith  float64 // degrees
	Range   float64 // meters
	Type    int
}

// Transformer converts sensor-frame observations into the vehicle and global
// frames, correcting for the fixed lidar-to-CoG offset.
type Transformer struct {
	LidarDistToCoG float64
}

// NewTransformer returns a Transformer configured with the default CoG offset.
func NewTransformer() Transformer {
	return Transformer{LidarDistToCoG: LidarDistToCoG}
}

// correctForCoGOffset applies the law-of-cosines correction described in
// spec §4.3, moving an (azimuth, range) reading measured at the lidar origin
// to the equivalent reading measured at the vehicle's centre of gravity.
func (t Transformer) correctForCoGOffset(azimuthDeg, rng float64) (newAzimuthDeg, newRange float64) {
	if azimuthDeg == 0 {
		// sign(0) is undefined; the correction collapses to a pure
		// range shift along the boresight in this case.
		l := t.LidarDistToCoG
		angle := math.Pi
		newRange = math.Sqrt(l*l + rng*rng - 2*l*rng*math.Cos(angle))
		return 0, newRange
	}

	sign := 1.0
	if azimuthDeg < 0 {
		sign = -1.0
	}

	l := t.LidarDistToCoG
	angle := math.Pi - math.Abs(azimuthDeg*math.Pi/180)
	newRange = math.Sqrt(l*l + rng*rng - 2*l*rng*math.Cos(angle))
	newAzimuthDeg = sign * math.Asin(math.Sin(angle)*rng/newRange) * 180 / math.Pi
	return newAzimuthDeg, newRange
}

// SphericalToCartesian converts a sensor-frame observation into a local 3-D
// point, with the CoG correction applied to azimuth and range first. The
// resulting Z component carries the CoG-corrected distance*sin(zenith) height, matching
// the original Spherical2Cartesian's z output (the type channel is carried
// separately by ConeToGlobal's caller, not folded into this function).
func (t Transformer) SphericalToCartesian(o Observation) r3.Vector {
	azimuthDeg, rng := t.correctForCoGOffset(o.Azimuth, o.Range)
	zenithRad := o.Zenith * math.Pi / 180
	azimuthRad := azimuthDeg * math.Pi / 180

	x := rng * math.Cos(zenithRad) * math.Cos(azimuthRad)
	y := rng * math.Cos(zenithRad) * math.Sin(azimuthRad)
	z := rng * math.Sin(zenithRad)
	return r3.Vector{X: x, Y: y, Z: z}
}

// Pose2D is a vehicle pose in the local Cartesian frame. Theta is in
// (-pi, pi].
type Pose2D struct {
	X, Y, Theta float64
}

// ConeToGlobal rotates and translates a sensor-frame observation's local
// point by the given pose, producing a global-frame point. The Z component of
// the result carries the observation's Type, unchanged, matching spec §4.3.
func (t Transformer) ConeToGlobal(pose Pose2D, o Observation) r3.Vector {
	local := t.SphericalToCartesian(o)
	cosT, sinT := math.Cos(pose.Theta), math.Sin(pose.Theta)
	newX := local.X*cosT - local.Y*sinT
	newY := local.X*sinT + local.Y*cosT
	return r3.Vector{
		X: newX + pose.X,
		Y: newY + pose.Y,
		Z: float64(o.Type),
	}
}

// LocalXY returns the local 2-D point (x, y) for an observation, discarding
// the CoG-corrected z height — this is the "Lᵢ" used as the SE2-to-XY
// measurement in the pose graph.
func (t Transformer) LocalXY(o Observation) r2.Point {
	v := t.SphericalToCartesian(o)
	return r2.Point{X: v.X, Y: v.Y}
}

// GlobalXY returns the global 2-D point for an observation under pose,
// discarding the type channel carried in Z — this is "Gᵢ".
func (t Transformer) GlobalXY(pose Pose2D, o Observation) r2.Point {
	v := t.ConeToGlobal(pose, o)
	return r2.Point{X: v.X, Y: v.Y}
}

// Distance2D returns the Euclidean distance between two 2-D points.
func Distance2D(a, b r2.Point) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// WrapAngle normalizes an angle in radians to (-pi, pi].
func WrapAngle(theta float64) float64 {
	for theta > math.Pi {
		theta -= 2 * math.Pi
	}
	for theta <= -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}

// Bearing returns the azimuth (radians, vehicle frame) and range (meters)
// from pose to a global point, the inverse of ConeToGlobal's rotation step.
// It is used by the map filter's colour heuristic and the localizer's
// "behind the beam" walk.
func Bearing(pose Pose2D, point r2.Point) (azimuthRad, rng float64) {
	dx, dy := point.X-pose.X, point.Y-pose.Y
	cosT, sinT := math.Cos(-pose.Theta), math.Sin(-pose.Theta)
	localX := dx*cosT - dy*sinT
	localY := dx*sinT + dy*cosT
	return math.Atan2(localY, localX), math.Hypot(localX, localY)
}
