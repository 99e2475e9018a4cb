// Package localizer implements post-loop-closure localization: a heading
// coarse search against the frozen map, data association, a small fixed-map
// pose solve, and the forward walk that advances the current-cone index.
package localizer

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/viam-modules/coneslam/frame"
	"github.com/viam-modules/coneslam/geometry"
	"github.com/viam-modules/coneslam/landmark"
	"github.com/viam-modules/coneslam/optgraph"
)

const (
	neighbourhoodRadius   = 30.0
	headingSweep          = math.Pi / 4
	headingStep           = 0.01745 * 2
	fittedDistanceLimit   = 1.5
	acceptSumLimit        = 3.0
	associationDistance   = 1.5
	minMatchesForPoseSolve = 3
	walkDistance          = 10.0
	walkAzimuthDeg        = 80.0
	observationInformation = 1.0 / 0.1
)

// Localizer holds the frozen global map and runs the per-keyframe
// localization pipeline against it.
type Localizer struct {
	transformer geometry.Transformer
	Map         []*landmark.Cone
}

// New returns a Localizer over the given frozen map.
func New(frozenMap []*landmark.Cone) *Localizer {
	return &Localizer{transformer: geometry.NewTransformer(), Map: frozenMap}
}

// Match is one accepted data association between a local observation and a
// map cone.
type Match struct {
	MapIndex int
	Local    r2.Point
}

// Result is the outcome of one Localize call.
type Result struct {
	SendPose landmark.Pose
	NewCCI   int
}

// Localize runs steps A-E of the post-loop-closure pipeline for one
// keyframe: heading coarse search, association, optional pose refinement,
// and the current-cone-index forward walk.
func (l *Localizer) Localize(fr frame.Frame, rawPose landmark.Pose, ccI int) Result {
	heading := l.optimizeHeading(fr, rawPose)
	corrected := landmark.Pose{X: rawPose.X, Y: rawPose.Y, Theta: heading}

	matches := l.associate(fr, corrected)

	var sendPose landmark.Pose
	if len(matches) >= minMatchesForPoseSolve {
		sendPose = l.refinePose(corrected, matches)
	} else {
		sendPose = corrected
	}

	newCCI := l.walkForward(sendPose, ccI)
	return Result{SendPose: sendPose, NewCCI: newCCI}
}

// neighbourhood returns the indices of Map within neighbourhoodRadius of
// pose, by optimized position.
func (l *Localizer) neighbourhood(pose landmark.Pose) []int {
	var idx []int
	for i, c := range l.Map {
		if geometry.Distance2D(c.OptimizedOrMean(), r2.Point{X: pose.X, Y: pose.Y}) < neighbourhoodRadius {
			idx = append(idx, i)
		}
	}
	return idx
}

// optimizeHeading sweeps candidate headings around rawPose.Theta and picks
// the one that best aligns the observed cones with the neighbourhood map,
// following optimizeHeading from the original exactly: lastConeFitter is
// reset every angle step, so the monotonicity check is local to each step
// rather than cumulative across the sweep.
func (l *Localizer) optimizeHeading(fr frame.Frame, rawPose landmark.Pose) float64 {
	neighbourIdx := l.neighbourhood(rawPose)
	if len(neighbourIdx) == 0 {
		return rawPose.Theta
	}

	bestHeading := rawPose.Theta
	bestSum := math.Inf(1)
	haveBest := false

	for h := rawPose.Theta - headingSweep; h <= rawPose.Theta+headingSweep; h += headingStep {
		sum := 0.0
		fitted := 0
		lastConeFitter := 0 // reset every step, matching the original's scoping bug-for-bug.

		for _, o := range fr.Observations {
			global := l.transformer.GlobalXY(geometry.Pose2D{X: rawPose.X, Y: rawPose.Y, Theta: h}, o)
			minDist := math.Inf(1)
			for _, idx := range neighbourIdx {
				d := geometry.Distance2D(global, l.Map[idx].OptimizedOrMean())
				if d < minDist {
					minDist = d
				}
			}
			sum += minDist
			if minDist < fittedDistanceLimit {
				fitted++
			}
		}

		if fitted >= 3 && fitted >= lastConeFitter && (!haveBest || sum < bestSum) {
			bestHeading = h
			bestSum = sum
			haveBest = true
			lastConeFitter = fitted
		}
	}

	if haveBest && bestSum < acceptSumLimit {
		return geometry.WrapAngle(bestHeading)
	}
	return rawPose.Theta
}

// associate performs step B: linear scan of Map for the nearest cone within
// associationDistance, per observation.
func (l *Localizer) associate(fr frame.Frame, pose landmark.Pose) []Match {
	var matches []Match
	for _, o := range fr.Observations {
		local := l.transformer.LocalXY(o)
		global := l.transformer.GlobalXY(geometry.Pose2D(pose), o)
		for i, c := range l.Map {
			if geometry.Distance2D(global, c.OptimizedOrMean()) < associationDistance {
				matches = append(matches, Match{MapIndex: i, Local: local})
				break
			}
		}
	}
	return matches
}

// refinePose runs step C: a two-layer pose graph with one free SE(2) vertex
// and one fixed XY vertex per matched map cone, solved with Backend.
func (l *Localizer) refinePose(corrected landmark.Pose, matches []Match) landmark.Pose {
	backend := optgraph.NewGaussNewtonBackend()
	const poseID = 1000

	backend.AddPoseVertex(poseID, corrected, false)
	info := [2]float64{observationInformation, observationInformation}
	for _, m := range matches {
		landmarkID := m.MapIndex + 1 // offset away from poseID's namespace
		pos := l.Map[m.MapIndex].OptimizedOrMean()
		backend.AddFixedLandmarkVertex(landmarkID, pos)
		backend.AddObservationEdge(poseID, landmarkID, m.Local, info)
	}

	if err := backend.Optimize(10); err != nil {
		return corrected
	}
	if est, ok := backend.PoseEstimate(poseID); ok {
		return est
	}
	return corrected
}

// walkForward implements step E: advance ccI through Map while the current
// cone is within walkDistance and behind the beam (|azimuth| > walkAzimuthDeg
// degrees), for at most len(Map) hops.
func (l *Localizer) walkForward(pose landmark.Pose, ccI int) int {
	if len(l.Map) == 0 {
		return ccI
	}
	idx := ccI % len(l.Map)
	for hop := 0; hop < len(l.Map); hop++ {
		az, rng := l.Map[idx].Bearing(pose)
		azDeg := math.Abs(az * 180 / math.Pi)
		if rng < walkDistance && azDeg > walkAzimuthDeg {
			idx = (idx + 1) % len(l.Map)
			continue
		}
		break
	}
	return idx
}
