// Package mapfilter implements the one-shot map filter run at loop closure:
// residual pruning, duplicate suppression, nearest-pose pruning, and late
// cone-colour assignment.
package mapfilter

import (
	"github.com/golang/geo/r2"

	"github.com/viam-modules/coneslam/geometry"
	"github.com/viam-modules/coneslam/landmark"
)

// NearestPoseMaxDistance is the max distance from a cone's optimized
// position to its nearest pose before the cone is invalidated.
const NearestPoseMaxDistance = 4.0

// MinObservationCount is the minimum number of observations a cone must
// have to survive filtering.
const MinObservationCount = 2

// Filter runs the loop-closure filter passes over cones in place (mutating
// Valid and, for unset-type cones, Type) and returns the compacted, still-
// valid slice — the final map M.
func Filter(cones []*landmark.Cone, poses []landmark.Pose, sameConeThreshold float64) []*landmark.Cone {
	pruneByResidual(cones, sameConeThreshold)
	dedupeByProximity(cones, sameConeThreshold)
	pruneByPoseDistanceAndCount(cones, poses)
	assignLateColours(cones, poses)

	out := make([]*landmark.Cone, 0, len(cones))
	for _, c := range cones {
		if c.Valid {
			out = append(out, c)
		}
	}
	return out
}

// pruneByResidual invalidates cones whose optimized position drifted more
// than sameConeThreshold from their observed mean.
func pruneByResidual(cones []*landmark.Cone, sameConeThreshold float64) {
	for _, c := range cones {
		if !c.Valid {
			continue
		}
		if c.ResidualAfterOptimization() > sameConeThreshold {
			c.Valid = false
		}
	}
}

// dedupeByProximity invalidates the higher-id cone of any still-valid pair
// whose optimized positions are within sameConeThreshold of each other.
func dedupeByProximity(cones []*landmark.Cone, sameConeThreshold float64) {
	for i := 0; i < len(cones); i++ {
		if !cones[i].Valid {
			continue
		}
		for j := 0; j < len(cones); j++ {
			if i == j || !cones[j].Valid {
				continue
			}
			if geometry.Distance2D(cones[i].OptimizedOrMean(), cones[j].OptimizedOrMean()) < sameConeThreshold {
				cones[j].Valid = false
			}
		}
	}
}

// pruneByPoseDistanceAndCount invalidates cones too far from every pose, or
// with too few observations to trust.
func pruneByPoseDistanceAndCount(cones []*landmark.Cone, poses []landmark.Pose) {
	for _, c := range cones {
		if !c.Valid {
			continue
		}
		if len(c.Observations) < MinObservationCount {
			c.Valid = false
			continue
		}
		if nearestPoseDistance(c, poses) > NearestPoseMaxDistance {
			c.Valid = false
		}
	}
}

// assignLateColours assigns type 1 or 2 to any still-valid cone whose type
// was never set (type 0), using the sign of its bearing from the nearest
// pose as a heuristic for which side of the track it lies on.
func assignLateColours(cones []*landmark.Cone, poses []landmark.Pose) {
	for _, c := range cones {
		if !c.Valid || c.Type != 0 {
			continue
		}
		pose, ok := nearestPose(c, poses)
		if !ok {
			continue
		}
		az, _ := c.Bearing(pose)
		if az > 0 {
			c.Type = 1
		} else {
			c.Type = 2
		}
	}
}

func nearestPoseDistance(c *landmark.Cone, poses []landmark.Pose) float64 {
	_, dist := nearestPoseAndDistance(c, poses)
	return dist
}

func nearestPose(c *landmark.Cone, poses []landmark.Pose) (landmark.Pose, bool) {
	if len(poses) == 0 {
		return landmark.Pose{}, false
	}
	p, _ := nearestPoseAndDistance(c, poses)
	return p, true
}

func nearestPoseAndDistance(c *landmark.Cone, poses []landmark.Pose) (landmark.Pose, float64) {
	pos := c.OptimizedOrMean()
	best := landmark.Pose{}
	bestDist := -1.0
	for _, p := range poses {
		d := geometry.Distance2D(pos, r2.Point{X: p.X, Y: p.Y})
		if bestDist < 0 || d < bestDist {
			best, bestDist = p, d
		}
	}
	if bestDist < 0 {
		return best, 1e18
	}
	return best, bestDist
}
