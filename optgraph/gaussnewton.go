package optgraph

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-modules/coneslam/geometry"
	"github.com/viam-modules/coneslam/landmark"
)

// MinVariance floors an observation covariance before it is inverted into an
// information value, so a single-observation cone (zero sample variance)
// never produces an infinite weight.
const MinVariance = 1e-4

const jacobianEpsilon = 1e-6

type poseVertex struct {
	id               int
	x, y, theta      float64
	fixed            bool
	offset           int // -1 if fixed
}

type landmarkVertex struct {
	id     int
	x, y   float64
	fixed  bool
	offset int
}

type odometryEdge struct {
	fromID, toID int
	mx, my, mth  float64
	info         [3]float64
}

type observationEdge struct {
	poseID, landmarkID int
	mx, my             float64
	info               [2]float64
}

// GaussNewtonBackend is a dense Gauss-Newton solver over an SE(2)/XY pose
// graph, implementing Backend with gonum's matrix stack in place of the
// sparse Cholesky-on-Eigen solver of the original C++ core.
type GaussNewtonBackend struct {
	poses     map[int]*poseVertex
	landmarks map[int]*landmarkVertex
	odomEdges []odometryEdge
	obsEdges  []observationEdge
}

// NewGaussNewtonBackend returns an empty graph.
func NewGaussNewtonBackend() *GaussNewtonBackend {
	return &GaussNewtonBackend{
		poses:     make(map[int]*poseVertex),
		landmarks: make(map[int]*landmarkVertex),
	}
}

// AddPoseVertex implements Backend.
func (g *GaussNewtonBackend) AddPoseVertex(id int, pose landmark.Pose, fixed bool) {
	if _, ok := g.poses[id]; ok {
		return
	}
	g.poses[id] = &poseVertex{id: id, x: pose.X, y: pose.Y, theta: pose.Theta, fixed: fixed}
}

// AddLandmarkVertex implements Backend.
func (g *GaussNewtonBackend) AddLandmarkVertex(id int, xy r2.Point) {
	if _, ok := g.landmarks[id]; ok {
		return
	}
	g.landmarks[id] = &landmarkVertex{id: id, x: xy.X, y: xy.Y}
}

// AddFixedLandmarkVertex implements Backend, adding a landmark vertex whose
// position is held constant through optimization (used by the localizer,
// which solves only for the vehicle pose against known map cones).
func (g *GaussNewtonBackend) AddFixedLandmarkVertex(id int, xy r2.Point) {
	if _, ok := g.landmarks[id]; ok {
		return
	}
	g.landmarks[id] = &landmarkVertex{id: id, x: xy.X, y: xy.Y, fixed: true}
}

// AddOdometryEdge implements Backend.
func (g *GaussNewtonBackend) AddOdometryEdge(fromID, toID int, measurement landmark.Pose, information [3]float64) {
	g.odomEdges = append(g.odomEdges, odometryEdge{
		fromID: fromID, toID: toID,
		mx: measurement.X, my: measurement.Y, mth: measurement.Theta,
		info: information,
	})
}

// AddObservationEdge implements Backend.
func (g *GaussNewtonBackend) AddObservationEdge(poseID, landmarkID int, measurement r2.Point, information [2]float64) {
	g.obsEdges = append(g.obsEdges, observationEdge{
		poseID: poseID, landmarkID: landmarkID,
		mx: measurement.X, my: measurement.Y,
		info: information,
	})
}

// PoseEstimate implements Backend.
func (g *GaussNewtonBackend) PoseEstimate(id int) (landmark.Pose, bool) {
	v, ok := g.poses[id]
	if !ok {
		return landmark.Pose{}, false
	}
	return landmark.Pose{X: v.x, Y: v.y, Theta: v.theta}, true
}

// LandmarkEstimate implements Backend.
func (g *GaussNewtonBackend) LandmarkEstimate(id int) (r2.Point, bool) {
	v, ok := g.landmarks[id]
	if !ok {
		return r2.Point{}, false
	}
	return r2.Point{X: v.x, Y: v.y}, true
}

// assignOffsets lays free pose vertices (3 dof each) then free landmark
// vertices (2 dof each) into a single state vector, in ascending id order so
// the layout is deterministic across calls.
func (g *GaussNewtonBackend) assignOffsets() int {
	poseIDs := make([]int, 0, len(g.poses))
	for id := range g.poses {
		poseIDs = append(poseIDs, id)
	}
	sort.Ints(poseIDs)

	landmarkIDs := make([]int, 0, len(g.landmarks))
	for id := range g.landmarks {
		landmarkIDs = append(landmarkIDs, id)
	}
	sort.Ints(landmarkIDs)

	offset := 0
	for _, id := range poseIDs {
		v := g.poses[id]
		if v.fixed {
			v.offset = -1
			continue
		}
		v.offset = offset
		offset += 3
	}
	for _, id := range landmarkIDs {
		v := g.landmarks[id]
		if v.fixed {
			v.offset = -1
			continue
		}
		v.offset = offset
		offset += 2
	}
	return offset
}

// Optimize implements Backend, running iterations rounds of Gauss-Newton.
func (g *GaussNewtonBackend) Optimize(iterations int) error {
	for iter := 0; iter < iterations; iter++ {
		n := g.assignOffsets()
		if n == 0 {
			return nil
		}

		h := mat.NewSymDense(n, nil)
		b := mat.NewVecDense(n, nil)

		for _, e := range g.odomEdges {
			g.accumulateOdometry(e, h, b)
		}
		for _, e := range g.obsEdges {
			g.accumulateObservation(e, h, b)
		}

		dx, err := solveNormalEquations(h, b)
		if err != nil {
			return errors.Wrap(err, "gauss-newton normal equations")
		}
		g.applyStep(dx)
	}
	return nil
}

func solveNormalEquations(h *mat.SymDense, b *mat.VecDense) (*mat.VecDense, error) {
	n, _ := h.Dims()
	var chol mat.Cholesky
	if chol.Factorize(h) {
		var dx mat.VecDense
		if err := chol.SolveVecTo(&dx, b); err != nil {
			return nil, errors.Wrap(err, "cholesky solve")
		}
		return &dx, nil
	}

	// Graph under-constrained for a clean Cholesky factorization (can
	// happen with a near-empty window); fall back to a general dense
	// solve against a small-damped copy of H.
	damped := mat.NewDense(n, n, nil)
	damped.CloneFromSym(h)
	for i := 0; i < n; i++ {
		damped.Set(i, i, damped.At(i, i)+1e-6)
	}
	var dx mat.VecDense
	if err := dx.SolveVec(damped, b); err != nil {
		return nil, errors.Wrap(err, "damped dense solve")
	}
	return &dx, nil
}

// applyStep subtracts the solved step from every free vertex. The normal
// equations are solved as H*dx = b with b = J^T*Omega*r (accumulateBlocks),
// which is the negative of the step direction: Gauss-Newton requires
// H*step = -b, so step = -dx.
func (g *GaussNewtonBackend) applyStep(dx *mat.VecDense) {
	for _, v := range g.poses {
		if v.fixed {
			continue
		}
		v.x -= dx.AtVec(v.offset)
		v.y -= dx.AtVec(v.offset + 1)
		v.theta = geometry.WrapAngle(v.theta - dx.AtVec(v.offset+2))
	}
	for _, v := range g.landmarks {
		if v.fixed {
			continue
		}
		v.x -= dx.AtVec(v.offset)
		v.y -= dx.AtVec(v.offset + 1)
	}
}

// odometryResidual computes the relative-SE2 residual between two poses
// against a measured relative pose, in the "from" pose's frame.
func odometryResidual(params []float64, mx, my, mth float64) []float64 {
	xFrom, yFrom, thFrom := params[0], params[1], params[2]
	xTo, yTo, thTo := params[3], params[4], params[5]

	dx, dy := xTo-xFrom, yTo-yFrom
	cosT, sinT := math.Cos(thFrom), math.Sin(thFrom)
	rx := dx*cosT + dy*sinT
	ry := -dx*sinT + dy*cosT
	rth := geometry.WrapAngle(thTo - thFrom)

	return []float64{rx - mx, ry - my, geometry.WrapAngle(rth - mth)}
}

// observationResidual computes the local-frame residual between where a
// landmark is predicted to be seen from a pose and the stored measurement.
func observationResidual(params []float64, mx, my float64) []float64 {
	xPose, yPose, theta := params[0], params[1], params[2]
	xLand, yLand := params[3], params[4]

	dx, dy := xLand-xPose, yLand-yPose
	cosT, sinT := math.Cos(-theta), math.Sin(-theta)
	localX := dx*cosT - dy*sinT
	localY := dx*sinT + dy*cosT

	return []float64{localX - mx, localY - my}
}

// numericalJacobian returns the Jacobian of residual at params via central
// differences, matching the analytic Jacobians a hand-rolled SE(2) solver
// would use but far less error-prone to get right by hand.
func numericalJacobian(params []float64, residual func([]float64) []float64) *mat.Dense {
	r0 := residual(params)
	m := len(r0)
	n := len(params)
	jac := mat.NewDense(m, n, nil)

	perturbed := make([]float64, n)
	for j := 0; j < n; j++ {
		copy(perturbed, params)
		perturbed[j] += jacobianEpsilon
		rPlus := residual(perturbed)
		perturbed[j] = params[j] - jacobianEpsilon
		rMinus := residual(perturbed)
		for i := 0; i < m; i++ {
			jac.Set(i, j, (rPlus[i]-rMinus[i])/(2*jacobianEpsilon))
		}
	}
	return jac
}

func (g *GaussNewtonBackend) accumulateOdometry(e odometryEdge, h *mat.SymDense, b *mat.VecDense) {
	from, ok1 := g.poses[e.fromID]
	to, ok2 := g.poses[e.toID]
	if !ok1 || !ok2 {
		return
	}
	params := []float64{from.x, from.y, from.theta, to.x, to.y, to.theta}
	r := odometryResidual(params, e.mx, e.my, e.mth)
	jac := numericalJacobian(params, func(p []float64) []float64 { return odometryResidual(p, e.mx, e.my, e.mth) })

	blocks := []vertexBlock{{offset: from.offset, fixed: from.fixed, cols: []int{0, 1, 2}}, {offset: to.offset, fixed: to.fixed, cols: []int{3, 4, 5}}}
	omega := [3]float64{e.info[0], e.info[1], e.info[2]}
	accumulateBlocks(h, b, blocks, jac, r, omega[:])
}

func (g *GaussNewtonBackend) accumulateObservation(e observationEdge, h *mat.SymDense, b *mat.VecDense) {
	pose, ok1 := g.poses[e.poseID]
	land, ok2 := g.landmarks[e.landmarkID]
	if !ok1 || !ok2 {
		return
	}
	params := []float64{pose.x, pose.y, pose.theta, land.x, land.y}
	r := observationResidual(params, e.mx, e.my)
	jac := numericalJacobian(params, func(p []float64) []float64 { return observationResidual(p, e.mx, e.my) })

	blocks := []vertexBlock{{offset: pose.offset, fixed: pose.fixed, cols: []int{0, 1, 2}}, {offset: land.offset, fixed: land.fixed, cols: []int{3, 4}}}
	omega := [2]float64{e.info[0], e.info[1]}
	accumulateBlocks(h, b, blocks, jac, r, omega[:])
}

// vertexBlock identifies which columns of a local Jacobian belong to one
// vertex, and where that vertex's variables land in the global state vector
// (or that it is fixed and contributes no columns to H/b).
type vertexBlock struct {
	offset int
	fixed  bool
	cols   []int
}

// accumulateBlocks scatter-adds one edge's weighted normal-equation
// contribution (J^T Omega J, J^T Omega r) into the global H, b, skipping
// columns that belong to a fixed vertex.
func accumulateBlocks(h *mat.SymDense, b *mat.VecDense, blocks []vertexBlock, jac *mat.Dense, r []float64, omegaDiag []float64) {
	m := len(r)
	weighted := make([]float64, m)
	for i := 0; i < m; i++ {
		weighted[i] = omegaDiag[i] * r[i]
	}

	for _, bi := range blocks {
		if bi.fixed {
			continue
		}
		for li, ci := range bi.cols {
			gi := bi.offset + li
			var bSum float64
			for row := 0; row < m; row++ {
				bSum += jac.At(row, ci) * weighted[row]
			}
			b.SetVec(gi, b.AtVec(gi)+bSum)

			for _, bj := range blocks {
				if bj.fixed {
					continue
				}
				for lj, cj := range bj.cols {
					gj := bj.offset + lj
					if gj < gi {
						continue
					}
					var hSum float64
					for row := 0; row < m; row++ {
						hSum += jac.At(row, ci) * omegaDiag[row] * jac.At(row, cj)
					}
					h.SetSym(gi, gj, h.At(gi, gj)+hSum)
				}
			}
		}
	}
}
