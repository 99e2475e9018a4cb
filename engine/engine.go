// Package engine wires the cone SLAM pipeline stages together: keyframe
// gating, data association, windowed and full-BA optimization, the
// loop-closure map filter, post-closure localization, and output emission.
// It owns the concurrency model described for the SLAM core: short-lived,
// per-domain mutexes acquired in a fixed order (sensor, then map, then
// send) so no two call sites can deadlock against each other.
package engine

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/viam-modules/coneslam/emitter"
	"github.com/viam-modules/coneslam/frame"
	"github.com/viam-modules/coneslam/geometry"
	"github.com/viam-modules/coneslam/initgate"
	"github.com/viam-modules/coneslam/keyframe"
	"github.com/viam-modules/coneslam/landmark"
	"github.com/viam-modules/coneslam/localizer"
	"github.com/viam-modules/coneslam/mapfilter"
	"github.com/viam-modules/coneslam/mapping"
	"github.com/viam-modules/coneslam/optgraph"
	"github.com/viam-modules/coneslam/persist"
	"github.com/viam-modules/coneslam/sensors"
)

// initGateDeltaThreshold and initGateMaxMagnitude mirror the GPS/IMU
// validity criteria from the initialization gate: a reading only counts if
// it moved by more than the threshold since the last one, and (for GPS) the
// absolute position stays within the magnitude bound.
const (
	initGateDeltaThreshold = 0.001
	initGateMaxMagnitude   = 200.0
)

// Phase is a state in the engine's lifecycle: INIT -> READY -> MAPPING ->
// CLOSING -> FILTERING -> LOCALIZING.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseReady
	PhaseMapping
	PhaseClosing
	PhaseFiltering
	PhaseLocalizing
)

// windowSize is the |CL|-coneRef trigger for the windowed optimizer.
const windowSize = 10

// optimizeIterations is the fixed Gauss-Newton iteration count used by
// every optimization pass (windowed, full BA, localizer pose solve).
const optimizeIterations = 10

// Params holds the configuration thresholds the engine needs, decoupled
// from the config package's on-disk shape so the engine can be constructed
// directly in tests.
type Params struct {
	SameConeThreshold    float64
	ConeMappingThreshold float64
	TimeBetweenKeyframes time.Duration
	LapSize              int
	ConesPerPacket       int
	SenderStamp          int
}

// Engine is the top-level SLAM orchestrator.
type Engine struct {
	params Params
	logger golog.Logger

	transformer geometry.Transformer
	associator  *mapping.Associator
	keyframes   *keyframe.Gate
	emitter     *emitter.Emitter

	sensorMu  sync.Mutex
	lastPose  landmark.Pose
	havePose  bool

	yawMu sync.Mutex
	yaw   float64

	groundSpeedMu  sync.Mutex
	groundSpeed    float64
	haveGroundSpeed bool
	groundSpeedValid bool

	headingMu    sync.Mutex
	lastHeading  float64
	haveHeading  bool
	headingValid bool

	gpsMu    sync.Mutex
	lastGPSX, lastGPSY float64
	haveGPS  bool
	gpsValid bool

	stateMachineMu    sync.Mutex
	stateMachineReady bool

	initMu        sync.Mutex
	initGate      *initgate.Gate
	readyInternal bool

	mapMu        sync.Mutex
	workingList  landmark.WorkingList
	poses        []landmark.Pose
	ccI          int
	deltaCC      int
	coneRef      int
	phase        Phase
	localizerRef *localizer.Localizer

	debugMapWriter  io.Writer
	debugPoseWriter io.Writer

	sendMu   sync.Mutex
	sendPose landmark.Pose
}

// New returns an Engine ready to receive sensor callbacks. debugMapWriter and
// debugPoseWriter are optional (nil skips the write); when set, the engine
// dumps the frozen map and keyframe poses to them at loop closure, the same
// debug sink spec.md §6 describes.
func New(
	params Params,
	posePub sensors.PosePublisher,
	conePub sensors.ConePublisher,
	logger golog.Logger,
	debugMapWriter, debugPoseWriter io.Writer,
) *Engine {
	e := &Engine{
		params:      params,
		logger:      logger,
		transformer: geometry.NewTransformer(),
		associator:  mapping.NewAssociator(params.SameConeThreshold, params.ConeMappingThreshold),
		keyframes:   keyframe.NewGate(params.TimeBetweenKeyframes),
		emitter:     emitter.New(posePub, conePub, params.SenderStamp),
		phase:       PhaseInit,
		// readyInternal defaults true: the init gate only gates readiness
		// once StartInitGate is actually running, so an embedder (or a
		// test) that never wires GPS/IMU sampling isn't permanently blocked.
		readyInternal: true,
	}
	e.initGate = initgate.NewGate(e)
	return e
}

// StartInitGate runs the GPS/IMU-speed/IMU-heading readiness poll loop in
// its own goroutine, gating SLAM processing until the streak thresholds in
// spec.md §4.10 are met. The loop also stops if ctx is cancelled; SLAM
// processing then stays gated.
func (e *Engine) StartInitGate(ctx context.Context) {
	e.initMu.Lock()
	e.readyInternal = false
	e.initMu.Unlock()

	go func() {
		counters := e.initGate.Run(ctx)
		e.initMu.Lock()
		e.readyInternal = counters.Ready()
		e.initMu.Unlock()
	}()
}

// SampleReady implements initgate.Sampler by reporting whether the most
// recently received GPS, ground-speed, and heading readings each moved
// enough since their prior reading to count as "changing," per spec.md
// §4.10's GPS/IMU validity criteria.
func (e *Engine) SampleReady() (gpsValid, imuSpeedValid, imuHeadingValid bool) {
	e.gpsMu.Lock()
	gpsValid = e.gpsValid
	e.gpsMu.Unlock()

	e.groundSpeedMu.Lock()
	imuSpeedValid = e.groundSpeedValid
	e.groundSpeedMu.Unlock()

	e.headingMu.Lock()
	imuHeadingValid = e.headingValid
	e.headingMu.Unlock()

	return gpsValid, imuSpeedValid, imuHeadingValid
}

// ReceiveGPS records a Cartesian GPS position reading for the init gate's
// readiness sampling.
func (e *Engine) ReceiveGPS(x, y float64) {
	e.gpsMu.Lock()
	defer e.gpsMu.Unlock()
	if e.haveGPS {
		movedX := math.Abs(x-e.lastGPSX) > initGateDeltaThreshold
		movedY := math.Abs(y-e.lastGPSY) > initGateDeltaThreshold
		withinMagnitude := math.Abs(x) < initGateMaxMagnitude && math.Abs(y) < initGateMaxMagnitude
		e.gpsValid = movedX && movedY && withinMagnitude
	}
	e.lastGPSX, e.lastGPSY = x, y
	e.haveGPS = true
}

// ReceiveHeadingReading records a raw IMU heading reading for the init
// gate's readiness sampling (distinct from ReceivePose's fused pose).
func (e *Engine) ReceiveHeadingReading(heading float64) {
	e.headingMu.Lock()
	defer e.headingMu.Unlock()
	if e.haveHeading {
		e.headingValid = math.Abs(heading-e.lastHeading) > initGateDeltaThreshold
	}
	e.lastHeading = heading
	e.haveHeading = true
}

// ReceiveYawRate records the latest yaw rate reading.
func (e *Engine) ReceiveYawRate(rate float64) {
	e.yawMu.Lock()
	defer e.yawMu.Unlock()
	e.yaw = rate
}

// ReceiveGroundSpeed records the latest ground speed reading, and whether it
// moved enough since the prior reading to count toward init-gate readiness.
func (e *Engine) ReceiveGroundSpeed(speed float64) {
	e.groundSpeedMu.Lock()
	defer e.groundSpeedMu.Unlock()
	if e.haveGroundSpeed {
		e.groundSpeedValid = math.Abs(speed-e.groundSpeed) > initGateDeltaThreshold
	}
	e.groundSpeed = speed
	e.haveGroundSpeed = true
}

// ReceiveStateMachineStatus records whether the surrounding state machine
// has armed SLAM processing.
func (e *Engine) ReceiveStateMachineStatus(ready bool) {
	e.stateMachineMu.Lock()
	e.stateMachineReady = ready
	e.stateMachineMu.Unlock()

	if ready {
		e.mapMu.Lock()
		if e.phase == PhaseInit {
			e.phase = PhaseReady
		}
		e.mapMu.Unlock()
	}
}

// ReceivePose records the latest raw odometry pose.
func (e *Engine) ReceivePose(pose landmark.Pose) {
	e.sensorMu.Lock()
	defer e.sensorMu.Unlock()
	e.lastPose = pose
	e.havePose = true
}

// ready reports whether the engine is armed to run SLAM: the state machine
// has signalled readiness, the init gate's GPS/IMU streak has passed (or was
// never started), and at least one pose has been received. Mirrors
// "performSLAM is a no-op if either ready flag is false".
func (e *Engine) ready() bool {
	e.stateMachineMu.Lock()
	smReady := e.stateMachineReady
	e.stateMachineMu.Unlock()

	e.initMu.Lock()
	internalReady := e.readyInternal
	e.initMu.Unlock()

	e.sensorMu.Lock()
	haveP := e.havePose
	e.sensorMu.Unlock()

	return smReady && internalReady && haveP
}

// ReceiveCombinedMessage is the sole SLAM entry point: it runs on the
// calling goroutine (no internal work queue), gating on the keyframe
// interval and on readiness before doing any work.
func (e *Engine) ReceiveCombinedMessage(ctx context.Context, bundle frame.ConeBundle, sampleTime time.Time) error {
	_, span := trace.StartSpan(ctx, "engine::ReceiveCombinedMessage")
	defer span.End()

	if !e.ready() {
		return nil
	}
	if !e.keyframes.Accept(sampleTime) {
		return nil
	}

	e.sensorMu.Lock()
	pose := e.lastPose
	poseID := landmark.PoseVertexIDBase + len(e.poses)
	e.sensorMu.Unlock()

	fr := frame.FromConeBundle(sampleTime, bundle)

	e.mapMu.Lock()
	defer e.mapMu.Unlock()

	e.poses = append(e.poses, pose)

	switch e.phase {
	case PhaseInit, PhaseReady:
		e.phase = PhaseMapping
		fallthrough
	case PhaseMapping:
		return e.stepMapping(fr, pose, poseID)
	case PhaseClosing, PhaseFiltering:
		// Transitional phases only ever observed mid-call; treated as
		// mapping since the transition below runs to completion inline.
		return e.stepMapping(fr, pose, poseID)
	case PhaseLocalizing:
		return e.stepLocalizing(fr, pose)
	}
	return nil
}

// stepMapping runs data association, the windowed optimizer trigger, and
// the loop-closure trigger, all under the map mutex held by the caller.
func (e *Engine) stepMapping(fr frame.Frame, pose landmark.Pose, poseID int) error {
	res := e.associator.CreateConnections(fr, pose, poseID, &e.workingList, e.ccI)
	if res.HaveNewCCI {
		e.ccI = res.NewCCI
	}
	e.deltaCC += res.DeltaCC

	if e.workingList.Len()-e.coneRef >= windowSize {
		e.runWindowedOptimization()
	}

	if e.deltaCC > e.params.LapSize {
		if err := e.runLoopClosure(); err != nil {
			return err
		}
	}

	e.sendMu.Lock()
	e.sendPose = pose
	e.sendMu.Unlock()

	return e.publish(pose)
}

// runWindowedOptimization builds and solves the rolling essential graph
// over the cones added since coneRef.
func (e *Engine) runWindowedOptimization() {
	cones := e.workingList.Cones()
	lastConeID := e.workingList.Len() - 1
	backend, touched := optgraph.BuildEssential(cones, e.poses, e.coneRef, lastConeID)
	if err := backend.Optimize(optimizeIterations); err != nil {
		e.logger.Debugw("windowed optimization failed", "error", err)
		return
	}
	optgraph.ApplyEssentialResults(backend, cones, e.poses)
	e.workingList.MarkEssential(touched)
	e.coneRef = lastConeID
}

// runLoopClosure runs the full bundle adjustment, the map filter, and
// transitions the engine into its post-closure localization phase. The map
// mutex is held by the caller across the whole call, per the concurrency
// design note that guarantees readers see either pre- or post-closure
// state, never intermediate.
func (e *Engine) runLoopClosure() error {
	_, span := trace.StartSpan(context.Background(), "engine::runLoopClosure")
	defer span.End()

	e.phase = PhaseClosing

	cones := e.workingList.Cones()
	backend := optgraph.BuildFullBA(cones, e.poses)
	if err := backend.Optimize(optimizeIterations); err != nil {
		return errors.Wrap(err, "full bundle adjustment")
	}
	optgraph.ApplyFullBAResults(backend, cones, e.poses)

	e.phase = PhaseFiltering
	mapfilter.Filter(cones, e.poses, e.params.SameConeThreshold)
	e.workingList.Freeze()
	e.ccI = 0

	e.localizerRef = localizer.New(e.workingList.Map())
	e.phase = PhaseLocalizing

	if e.debugMapWriter != nil && e.debugPoseWriter != nil {
		if err := persist.WriteAll(e.debugMapWriter, e.debugPoseWriter, e.workingList.Map(), e.poses); err != nil {
			e.logger.Debugw("debug map/pose dump failed", "error", err)
		}
	}
	return nil
}

// stepLocalizing runs the post-loop-closure localization pipeline, map and
// cone list are read-only from here except for ccI and sendPose.
func (e *Engine) stepLocalizing(fr frame.Frame, rawPose landmark.Pose) error {
	res := e.localizerRef.Localize(fr, rawPose, e.ccI)
	e.ccI = res.NewCCI

	e.sendMu.Lock()
	e.sendPose = res.SendPose
	e.sendMu.Unlock()

	return e.publish(res.SendPose)
}

// publish emits the current send pose and upcoming cone window. It must be
// called with mapMu already held (send acquired after map, per lock
// ordering) so the emitted window is consistent with the map state that
// produced sendPose.
func (e *Engine) publish(pose landmark.Pose) error {
	e.sendMu.Lock()
	sendPose := e.sendPose
	e.sendMu.Unlock()

	frozenMap := e.workingList.Map()
	if e.phase != PhaseLocalizing {
		// Before loop closure there is no frozen map yet to emit cones
		// from; only the pose stream is meaningful.
		return errors.Wrap(e.emitter.Emit(sendPose, nil, e.ccI, e.params.ConesPerPacket), "emit")
	}
	return errors.Wrap(e.emitter.Emit(sendPose, frozenMap, e.ccI, e.params.ConesPerPacket), "emit")
}

// Phase returns the engine's current lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	return e.phase
}

// DebugSnapshot is a point-in-time copy of the engine's map-domain state,
// collapsing the original implementation's several separate debug-draw
// accessors into a single call.
type DebugSnapshot struct {
	Phase        Phase
	Cones        []*landmark.Cone
	EssentialMap []*landmark.Cone
	FrozenMap    []*landmark.Cone
	Poses        []landmark.Pose
	CCI          int
	DeltaCC      int
}

// Snapshot returns a DebugSnapshot of the engine's current state.
func (e *Engine) Snapshot() DebugSnapshot {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	return DebugSnapshot{
		Phase:        e.phase,
		Cones:        e.workingList.Cones(),
		EssentialMap: e.workingList.EssentialMap(),
		FrozenMap:    e.workingList.Map(),
		Poses:        e.poses,
		CCI:          e.ccI,
		DeltaCC:      e.deltaCC,
	}
}
