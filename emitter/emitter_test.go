package emitter_test

import (
	"testing"

	"go.viam.com/test"

	"github.com/viam-modules/coneslam/emitter"
	"github.com/viam-modules/coneslam/landmark"
	"github.com/viam-modules/coneslam/sensors"
)

type fakePosePublisher struct {
	published []sensors.PoseOutput
}

func (f *fakePosePublisher) PublishPose(p sensors.PoseOutput) error {
	f.published = append(f.published, p)
	return nil
}

type fakeConePublisher struct {
	published []sensors.ConeOutput
}

func (f *fakeConePublisher) PublishCone(c sensors.ConeOutput) error {
	f.published = append(f.published, c)
	return nil
}

func coneAt(id int, x, y float64) *landmark.Cone {
	c := landmark.NewCone(id, 1, landmark.Observation{})
	c.SetOptimized(x, y)
	return c
}

func TestEmitPublishesPoseThenWrappedConeWindow(t *testing.T) {
	posePub := &fakePosePublisher{}
	conePub := &fakeConePublisher{}
	e := emitter.New(posePub, conePub, 7)

	frozenMap := []*landmark.Cone{coneAt(0, 1, 0), coneAt(1, 2, 0), coneAt(2, 3, 0)}
	err := e.Emit(landmark.Pose{X: 0, Y: 0, Theta: 0}, frozenMap, 2, 4)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, len(posePub.published), test.ShouldEqual, 1)
	test.That(t, posePub.published[0].SenderStamp, test.ShouldEqual, 7)

	// conesPerPacket=4 but only 3 cones exist: window wraps starting at ccI=2.
	test.That(t, len(conePub.published), test.ShouldEqual, 3)
	test.That(t, conePub.published[0].ObjectID, test.ShouldEqual, 3)
	test.That(t, conePub.published[len(conePub.published)-1].ObjectID, test.ShouldEqual, 1)
}

func TestEmitSkipsConesWhenFrozenMapEmpty(t *testing.T) {
	posePub := &fakePosePublisher{}
	conePub := &fakeConePublisher{}
	e := emitter.New(posePub, conePub, 1)

	err := e.Emit(landmark.Pose{}, nil, 0, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(posePub.published), test.ShouldEqual, 1)
	test.That(t, len(conePub.published), test.ShouldEqual, 0)
}
