package engine_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/viam-modules/coneslam/engine"
	"github.com/viam-modules/coneslam/frame"
	"github.com/viam-modules/coneslam/landmark"
	"github.com/viam-modules/coneslam/sensors"
)

type recordingPosePublisher struct {
	poses []sensors.PoseOutput
}

func (r *recordingPosePublisher) PublishPose(p sensors.PoseOutput) error {
	r.poses = append(r.poses, p)
	return nil
}

type recordingConePublisher struct {
	cones []sensors.ConeOutput
}

func (r *recordingConePublisher) PublishCone(c sensors.ConeOutput) error {
	r.cones = append(r.cones, c)
	return nil
}

func newTestEngine(t *testing.T) (*engine.Engine, *recordingPosePublisher, *recordingConePublisher) {
	posePub := &recordingPosePublisher{}
	conePub := &recordingConePublisher{}
	e := engine.New(engine.Params{
		SameConeThreshold:    0.5,
		ConeMappingThreshold: 20,
		TimeBetweenKeyframes: time.Millisecond,
		LapSize:              40,
		ConesPerPacket:       4,
		SenderStamp:          1,
	}, posePub, conePub, golog.NewTestLogger(t), nil, nil)
	return e, posePub, conePub
}

func bundleAt(id int, azimuth, rng float64, typ int) frame.ConeBundle {
	return frame.ConeBundle{id: {Azimuth: azimuth, Zenith: 0, Range: rng, Type: typ}}
}

func TestEngineIsNoOpBeforeReady(t *testing.T) {
	e, posePub, _ := newTestEngine(t)
	e.ReceivePose(landmark.Pose{})
	err := e.ReceiveCombinedMessage(context.Background(), bundleAt(0, 0, 2, 1), time.Unix(0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(posePub.poses), test.ShouldEqual, 0)
}

func TestEngineMapsSingleConeAfterReady(t *testing.T) {
	e, posePub, _ := newTestEngine(t)
	e.ReceiveStateMachineStatus(true)
	e.ReceivePose(landmark.Pose{})

	err := e.ReceiveCombinedMessage(context.Background(), bundleAt(0, 0, 2, 1), time.Unix(0, 0))
	test.That(t, err, test.ShouldBeNil)

	snap := e.Snapshot()
	test.That(t, len(snap.Cones), test.ShouldEqual, 1)
	test.That(t, snap.Phase, test.ShouldEqual, engine.PhaseMapping)
	test.That(t, len(posePub.poses), test.ShouldEqual, 1)
}

func TestEngineKeyframeGateDropsRapidFrames(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.ReceiveStateMachineStatus(true)
	e.ReceivePose(landmark.Pose{})

	base := time.Unix(0, 0)
	e.ReceiveCombinedMessage(context.Background(), bundleAt(0, 0, 2, 1), base)
	e.ReceiveCombinedMessage(context.Background(), bundleAt(1, 10, 2, 1), base) // same timestamp: gate should drop it

	snap := e.Snapshot()
	test.That(t, len(snap.Cones), test.ShouldEqual, 1)
}

func TestEngineRunsWindowedOptimizationAfterTenCones(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.ReceiveStateMachineStatus(true)

	base := time.Unix(0, 0)
	for i := 0; i < 11; i++ {
		pose := landmark.Pose{X: float64(i), Y: 0, Theta: 0}
		e.ReceivePose(pose)
		bundle := bundleAt(0, float64(i*20), 3, 1) // distinct azimuths -> distinct global positions -> new cones
		err := e.ReceiveCombinedMessage(context.Background(), bundle, base.Add(time.Duration(i)*time.Millisecond*10))
		test.That(t, err, test.ShouldBeNil)
	}

	snap := e.Snapshot()
	test.That(t, snap.CCI >= 0, test.ShouldBeTrue)
	test.That(t, len(snap.Cones) >= 10, test.ShouldBeTrue)
	// The tenth cone triggers the windowed pass over cones 0..9.
	test.That(t, len(snap.EssentialMap), test.ShouldEqual, 10)
	for i := 0; i < 10; i++ {
		test.That(t, snap.Cones[i].Optimized, test.ShouldBeTrue)
	}
}

func TestEngineSkipsConeEmissionBeforeLoopClosure(t *testing.T) {
	e, _, conePub := newTestEngine(t)
	e.ReceiveStateMachineStatus(true)
	e.ReceivePose(landmark.Pose{})
	e.ReceiveCombinedMessage(context.Background(), bundleAt(0, 0, 2, 1), time.Unix(0, 0))
	test.That(t, len(conePub.cones), test.ShouldEqual, 0)
}

func TestEngineIsNoOpBeforeInitGateReady(t *testing.T) {
	posePub := &recordingPosePublisher{}
	conePub := &recordingConePublisher{}
	e := engine.New(engine.Params{
		SameConeThreshold:    0.5,
		ConeMappingThreshold: 20,
		TimeBetweenKeyframes: time.Millisecond,
		LapSize:              40,
		ConesPerPacket:       4,
		SenderStamp:          1,
	}, posePub, conePub, golog.NewTestLogger(t), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled immediately: the gate returns not-ready
	e.StartInitGate(ctx)

	e.ReceiveStateMachineStatus(true)
	e.ReceivePose(landmark.Pose{})
	// Give the init-gate goroutine a chance to observe the cancelled context.
	time.Sleep(10 * time.Millisecond)

	err := e.ReceiveCombinedMessage(context.Background(), bundleAt(0, 0, 2, 1), time.Unix(0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(posePub.poses), test.ShouldEqual, 0)
}

func TestEngineSampleReadyReflectsRecentGPSAndIMUDeltas(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.ReceiveGPS(10, 10)
	e.ReceiveGroundSpeed(1)
	e.ReceiveHeadingReading(0.1)
	gps, speed, heading := e.SampleReady()
	test.That(t, gps, test.ShouldBeFalse) // first sample: no prior value to diff against
	test.That(t, speed, test.ShouldBeFalse)
	test.That(t, heading, test.ShouldBeFalse)

	e.ReceiveGPS(10.01, 10.01)
	e.ReceiveGroundSpeed(1.5)
	e.ReceiveHeadingReading(0.2)
	gps, speed, heading = e.SampleReady()
	test.That(t, gps, test.ShouldBeTrue)
	test.That(t, speed, test.ShouldBeTrue)
	test.That(t, heading, test.ShouldBeTrue)
}

func TestEngineWritesDebugMapAndPosesAtLoopClosure(t *testing.T) {
	var mapBuf, poseBuf bytes.Buffer
	posePub := &recordingPosePublisher{}
	conePub := &recordingConePublisher{}
	e := engine.New(engine.Params{
		SameConeThreshold:    0.5,
		ConeMappingThreshold: 20,
		TimeBetweenKeyframes: time.Millisecond,
		LapSize:              2,
		ConesPerPacket:       4,
		SenderStamp:          1,
	}, posePub, conePub, golog.NewTestLogger(t), &mapBuf, &poseBuf)
	e.ReceiveStateMachineStatus(true)
	e.ReceivePose(landmark.Pose{}) // fixed pose throughout: only the cone azimuth varies

	// Each new azimuth creates a cone; repeating the same azimuth right after
	// matches that just-created cone and tentatively advances ccI to its id,
	// so three create/match pairs push deltaCC past lapSize (2) and trigger
	// loop closure.
	azimuths := []float64{0, 40, 40, 80, 80, 120, 120}
	base := time.Unix(0, 0)
	for i, az := range azimuths {
		bundle := bundleAt(0, az, 3, 1)
		err := e.ReceiveCombinedMessage(context.Background(), bundle, base.Add(time.Duration(i)*time.Millisecond*10))
		test.That(t, err, test.ShouldBeNil)
	}

	snap := e.Snapshot()
	test.That(t, snap.Phase, test.ShouldEqual, engine.PhaseLocalizing)
	test.That(t, mapBuf.Len() > 0, test.ShouldBeTrue)
	test.That(t, poseBuf.Len() > 0, test.ShouldBeTrue)
}
