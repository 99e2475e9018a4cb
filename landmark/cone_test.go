package landmark_test

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/viam-modules/coneslam/landmark"
)

func TestWorkingListAssignsDenseIDs(t *testing.T) {
	var wl landmark.WorkingList
	for i := 0; i < 5; i++ {
		c := wl.Add(1, landmark.Observation{Global: r2.Point{X: float64(i), Y: 0}, PoseID: 1000})
		test.That(t, c.ID, test.ShouldEqual, i)
	}
	test.That(t, wl.Len(), test.ShouldEqual, 5)
	for i, c := range wl.Cones() {
		test.That(t, c.ID, test.ShouldEqual, i)
	}
}

func TestConeMeanIsArithmeticMeanOfObservations(t *testing.T) {
	c := landmark.NewCone(0, 1, landmark.Observation{Global: r2.Point{X: 0, Y: 0}, PoseID: 1000})
	c.AddObservation(landmark.Observation{Global: r2.Point{X: 2, Y: 4}, PoseID: 1001})
	mean := c.Mean()
	test.That(t, mean.X, test.ShouldAlmostEqual, 1.0, 1e-9)
	test.That(t, mean.Y, test.ShouldAlmostEqual, 2.0, 1e-9)
	test.That(t, len(c.Observations), test.ShouldEqual, 2)
}

func TestResidualAfterOptimizationIsDistanceFromMean(t *testing.T) {
	c := landmark.NewCone(0, 1, landmark.Observation{Global: r2.Point{X: 0, Y: 0}, PoseID: 1000})
	c.SetOptimized(3, 4)
	test.That(t, c.ResidualAfterOptimization(), test.ShouldAlmostEqual, 5.0, 1e-9)
}

func TestConnectedPosesDeduplicatesInFirstSeenOrder(t *testing.T) {
	c := landmark.NewCone(0, 1, landmark.Observation{PoseID: 1000})
	c.AddObservation(landmark.Observation{PoseID: 1002})
	c.AddObservation(landmark.Observation{PoseID: 1000})
	test.That(t, c.ConnectedPoses(), test.ShouldResemble, []int{1000, 1002})
}

func TestFreezeCopiesOnlyValidConesInOrder(t *testing.T) {
	var wl landmark.WorkingList
	wl.Add(1, landmark.Observation{PoseID: 1000})
	invalid := wl.Add(1, landmark.Observation{PoseID: 1000})
	invalid.Valid = false
	wl.Add(2, landmark.Observation{PoseID: 1000})

	wl.Freeze()
	test.That(t, len(wl.Map()), test.ShouldEqual, 2)
	test.That(t, wl.Map()[0].ID, test.ShouldEqual, 0)
	test.That(t, wl.Map()[1].ID, test.ShouldEqual, 2)
}

func TestBearingPointsForwardAtZeroHeading(t *testing.T) {
	c := landmark.NewCone(0, 1, landmark.Observation{Global: r2.Point{X: 5, Y: 0}, PoseID: 1000})
	az, rng := c.Bearing(landmark.Pose{X: 0, Y: 0, Theta: 0})
	test.That(t, az, test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, rng, test.ShouldAlmostEqual, 5.0, 1e-9)
}

func TestBearingOfConeToTheLeftIsPositive(t *testing.T) {
	c := landmark.NewCone(0, 1, landmark.Observation{Global: r2.Point{X: 0, Y: 5}, PoseID: 1000})
	az, _ := c.Bearing(landmark.Pose{X: 0, Y: 0, Theta: 0})
	test.That(t, az > 0, test.ShouldBeTrue)
	test.That(t, math.Abs(az-math.Pi/2) < 1e-9, test.ShouldBeTrue)
}
