// Package optgraph defines the pose-graph optimization backend used by the
// windowed and full bundle-adjustment passes, and a Gauss-Newton
// implementation of it built on gonum's dense linear algebra.
package optgraph

import (
	"github.com/golang/geo/r2"

	"github.com/viam-modules/coneslam/landmark"
)

// Backend is a pose graph: SE(2) pose vertices, XY landmark vertices,
// relative-pose odometry edges between poses, and SE2-to-XY observation
// edges between a pose and a landmark. AddPoseVertex/AddLandmarkVertex may
// be called with an id already present, in which case the call is a no-op
// (graphs are built incrementally by re-adding the same window).
type Backend interface {
	AddPoseVertex(id int, pose landmark.Pose, fixed bool)
	AddLandmarkVertex(id int, xy r2.Point)
	AddFixedLandmarkVertex(id int, xy r2.Point)
	AddOdometryEdge(fromID, toID int, measurement landmark.Pose, information [3]float64)
	AddObservationEdge(poseID, landmarkID int, measurement r2.Point, information [2]float64)
	Optimize(iterations int) error
	PoseEstimate(id int) (landmark.Pose, bool)
	LandmarkEstimate(id int) (r2.Point, bool)
}
