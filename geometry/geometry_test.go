package geometry_test

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/viam-modules/coneslam/geometry"
)

func TestSphericalToCartesianAppliesCoGCorrection(t *testing.T) {
	// Scenario 1 from the spec: az=0, zen=0, range=2, pose=(0,0,0).
	// newDistance = sqrt(2^2 + 1.5^2 - 2*2*1.5*cos(pi)) = sqrt(4+2.25+6) = 3.5
	tr := geometry.NewTransformer()
	local := tr.SphericalToCartesian(geometry.Observation{Azimuth: 0, Zenith: 0, Range: 2, Type: 1})
	test.That(t, local.X, test.ShouldAlmostEqual, 3.5, 1e-9)
	test.That(t, local.Y, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestConeToGlobalWithIdentityPoseEqualsSphericalToCartesianXY(t *testing.T) {
	tr := geometry.NewTransformer()
	o := geometry.Observation{Azimuth: 12, Zenith: 3, Range: 5, Type: 2}
	local := tr.SphericalToCartesian(o)
	global := tr.ConeToGlobal(geometry.Pose2D{}, o)
	test.That(t, global.X, test.ShouldAlmostEqual, local.X, 1e-9)
	test.That(t, global.Y, test.ShouldAlmostEqual, local.Y, 1e-9)
	test.That(t, global.Z, test.ShouldEqual, float64(o.Type))
}

func TestConeToGlobalRotatesAndTranslates(t *testing.T) {
	tr := geometry.NewTransformer()
	o := geometry.Observation{Azimuth: 0, Zenith: 0, Range: 2, Type: 1}
	pose := geometry.Pose2D{X: 10, Y: -5, Theta: math.Pi / 2}
	global := tr.ConeToGlobal(pose, o)
	// local point is (3.5, 0); rotating by pi/2 gives (0, 3.5), then translate.
	test.That(t, global.X, test.ShouldAlmostEqual, 10, 1e-9)
	test.That(t, global.Y, test.ShouldAlmostEqual, -5+3.5, 1e-9)
}

func TestBearingInvertsConeToGlobalRotation(t *testing.T) {
	tr := geometry.NewTransformer()
	pose := geometry.Pose2D{X: 1, Y: 2, Theta: 0.4}
	o := geometry.Observation{Azimuth: 20, Zenith: 0, Range: 8, Type: 0}
	global := tr.GlobalXY(pose, o)

	localAz, localRange := geometry.Bearing(pose, global)
	localPoint := tr.LocalXY(o)
	wantAz := math.Atan2(localPoint.Y, localPoint.X)

	test.That(t, localAz, test.ShouldAlmostEqual, wantAz, 1e-6)
	test.That(t, localRange, test.ShouldAlmostEqual, math.Hypot(localPoint.X, localPoint.Y), 1e-6)
}

func TestWrapAngle(t *testing.T) {
	test.That(t, geometry.WrapAngle(0), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, geometry.WrapAngle(math.Pi), test.ShouldAlmostEqual, math.Pi, 1e-9)
	test.That(t, geometry.WrapAngle(3*math.Pi), test.ShouldAlmostEqual, math.Pi, 1e-9)
	test.That(t, geometry.WrapAngle(-3*math.Pi), test.ShouldAlmostEqual, math.Pi, 1e-9)
}
