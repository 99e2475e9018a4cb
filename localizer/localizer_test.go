package localizer_test

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/viam-modules/coneslam/frame"
	"github.com/viam-modules/coneslam/geometry"
	"github.com/viam-modules/coneslam/landmark"
	"github.com/viam-modules/coneslam/localizer"
)

func mapCone(id, typ int, pos r2.Point) *landmark.Cone {
	c := landmark.NewCone(id, typ, landmark.Observation{Global: pos})
	c.SetOptimized(pos.X, pos.Y)
	return c
}

func TestLocalizeWithFewMatchesFallsBackToCorrectedPose(t *testing.T) {
	frozen := []*landmark.Cone{
		mapCone(0, 1, r2.Point{X: 5, Y: 1}),
	}
	l := localizer.New(frozen)

	fr := frame.Frame{Observations: []geometry.Observation{{Azimuth: 11, Zenith: 0, Range: 4, Type: 1}}}
	res := l.Localize(fr, landmark.Pose{X: 0, Y: 0, Theta: 0}, 0)

	test.That(t, res.SendPose.X, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, res.SendPose.Y, test.ShouldAlmostEqual, 0.0, 1e-9)
}

func TestLocalizeWalksForwardPastConeBehindTheBeam(t *testing.T) {
	frozen := []*landmark.Cone{
		mapCone(0, 1, r2.Point{X: -5, Y: 0}), // directly behind
		mapCone(1, 1, r2.Point{X: 5, Y: 0}),  // ahead
	}
	l := localizer.New(frozen)
	res := l.Localize(frame.Frame{}, landmark.Pose{X: 0, Y: 0, Theta: 0}, 0)
	test.That(t, res.NewCCI, test.ShouldEqual, 1)
}
