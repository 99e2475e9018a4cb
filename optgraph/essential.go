package optgraph

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/viam-modules/coneslam/geometry"
	"github.com/viam-modules/coneslam/landmark"
)

// InformationOdometry is the fixed information (diag) applied to every
// odometry edge, corresponding to the original's information = I*(1/0.5).
var InformationOdometry = [3]float64{1.0 / 0.5, 1.0 / 0.5, 1.0 / 0.5}

// BuildEssential constructs a windowed graph over the poses connected to any
// cone in [coneRefID, lastConeID], fixes the lowest pose id in that window,
// and returns the populated Backend along with the cones it touched (for
// WorkingList.MarkEssential bookkeeping).
func BuildEssential(
	cones []*landmark.Cone,
	poses []landmark.Pose,
	coneRefID, lastConeID int,
) (Backend, []*landmark.Cone) {
	backend := NewGaussNewtonBackend()

	window := cones
	if coneRefID >= 0 && coneRefID < len(cones) && lastConeID+1 <= len(cones) {
		window = cones[coneRefID : lastConeID+1]
	}

	poseIDs := map[int]bool{}
	for _, c := range window {
		for _, pid := range c.ConnectedPoses() {
			poseIDs[pid] = true
		}
	}
	if len(poseIDs) == 0 {
		return backend, window
	}

	minID, maxID := minMaxKeys(poseIDs)
	for pid := minID; pid <= maxID; pid++ {
		idx := pid - landmark.PoseVertexIDBase
		if idx < 0 || idx >= len(poses) {
			continue
		}
		backend.AddPoseVertex(pid, poses[idx], pid == minID)
	}
	for pid := minID; pid < maxID; pid++ {
		fromIdx, toIdx := pid-landmark.PoseVertexIDBase, pid+1-landmark.PoseVertexIDBase
		if fromIdx < 0 || toIdx >= len(poses) {
			continue
		}
		measurement := relativePose(poses[fromIdx], poses[toIdx])
		backend.AddOdometryEdge(pid, pid+1, measurement, InformationOdometry)
	}

	for _, c := range window {
		addConeToGraph(backend, c)
	}

	return backend, window
}

// ApplyEssentialResults writes a windowed optimization's results back into
// the working pose/cone lists, the same slices the graph was built from.
func ApplyEssentialResults(backend Backend, cones []*landmark.Cone, poses []landmark.Pose) {
	writeBackResults(backend, cones, poses)
}

func minMaxKeys(m map[int]bool) (min, max int) {
	first := true
	for k := range m {
		if first {
			min, max = k, k
			first = false
			continue
		}
		if k < min {
			min = k
		}
		if k > max {
			max = k
		}
	}
	return min, max
}

// relativePose expresses to's pose in from's local frame: the measurement an
// odometry edge between consecutive poses carries.
func relativePose(from, to landmark.Pose) landmark.Pose {
	dx, dy := to.X-from.X, to.Y-from.Y
	cosT, sinT := math.Cos(from.Theta), math.Sin(from.Theta)
	return landmark.Pose{
		X:     dx*cosT + dy*sinT,
		Y:     -dx*sinT + dy*cosT,
		Theta: geometry.WrapAngle(to.Theta - from.Theta),
	}
}

func addConeToGraph(backend Backend, c *landmark.Cone) {
	backend.AddLandmarkVertex(c.ID, c.OptimizedOrMean())
	varX, varY := c.Variance()
	if varX < MinVariance {
		varX = MinVariance
	}
	if varY < MinVariance {
		varY = MinVariance
	}
	info := [2]float64{1 / varX, 1 / varY}

	for _, pid := range c.ConnectedPoses() {
		local := localObservationForPose(c, pid)
		backend.AddObservationEdge(pid, c.ID, local, info)
	}
}

func localObservationForPose(c *landmark.Cone, poseID int) r2.Point {
	for _, o := range c.Observations {
		if o.PoseID == poseID {
			return o.Local
		}
	}
	return r2.Point{}
}

func writeBackResults(backend Backend, cones []*landmark.Cone, poses []landmark.Pose) {
	for i := range poses {
		if est, ok := backend.PoseEstimate(i + landmark.PoseVertexIDBase); ok {
			poses[i] = est
		}
	}
	for _, c := range cones {
		if est, ok := backend.LandmarkEstimate(c.ID); ok {
			c.SetOptimized(est.X, est.Y)
		}
	}
}
