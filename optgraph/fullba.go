package optgraph

import "github.com/viam-modules/coneslam/landmark"

// BuildFullBA constructs the exhaustive loop-closure graph: every pose in
// poses and every cone in cones, with only the first pose fixed.
func BuildFullBA(cones []*landmark.Cone, poses []landmark.Pose) Backend {
	backend := NewGaussNewtonBackend()

	for i, p := range poses {
		pid := i + landmark.PoseVertexIDBase
		backend.AddPoseVertex(pid, p, i == 0)
	}
	for i := 0; i < len(poses)-1; i++ {
		fromID, toID := i+landmark.PoseVertexIDBase, i+1+landmark.PoseVertexIDBase
		backend.AddOdometryEdge(fromID, toID, relativePose(poses[i], poses[i+1]), InformationOdometry)
	}

	for _, c := range cones {
		addConeToGraph(backend, c)
	}

	return backend
}

// ApplyFullBAResults writes a loop-closure optimization's results back into
// every pose and cone it touched.
func ApplyFullBAResults(backend Backend, cones []*landmark.Cone, poses []landmark.Pose) {
	writeBackResults(backend, cones, poses)
}
