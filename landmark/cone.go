// Package landmark defines the Cone landmark record and the working cone
// list/pose list that the SLAM engine accumulates during mapping.
package landmark

import (
	"math"

	"github.com/golang/geo/r2"
)

// Pose is a vehicle pose (x, y, theta) in the local Cartesian frame.
// Theta is in (-pi, pi].
type Pose struct {
	X, Y, Theta float64
}

// Observation records a single local/global cone sighting made while the
// vehicle was at a given pose.
type Observation struct {
	Local  r2.Point // sensor-frame point, used as the SE2-to-XY measurement
	Global r2.Point
	PoseID int // vertex id of the pose this observation was taken from
	// ConeIndexAtObservation is the value of the engine's current-cone-index
	// at the time of this observation, kept for debugging/replay parity with
	// the original implementation; the engine does not read it back.
	ConeIndexAtObservation int
}

// Cone is a landmark: an accumulated set of local/global observations, a
// running mean/variance, an optional optimized position, and a validity
// flag. Ids are assigned by WorkingList in insertion order and equal a
// Cone's position in the list (invariant I2 in spec.md).
type Cone struct {
	ID           int
	Type         int
	Observations []Observation
	Valid        bool
	Optimized    bool
	OptX, OptY   float64
}

// NewCone creates a cone with a single initial observation.
func NewCone(id, typ int, obs Observation) *Cone {
	return &Cone{
		ID:           id,
		Type:         typ,
		Observations: []Observation{obs},
		Valid:        true,
	}
}

// AddObservation appends a new sighting of this cone.
func (c *Cone) AddObservation(obs Observation) {
	c.Observations = append(c.Observations, obs)
}

// Mean returns the arithmetic mean of this cone's global observations.
// The Cone's observation list is never empty (invariant I1), so Mean is
// always well defined.
func (c *Cone) Mean() r2.Point {
	var sx, sy float64
	for _, o := range c.Observations {
		sx += o.Global.X
		sy += o.Global.Y
	}
	n := float64(len(c.Observations))
	return r2.Point{X: sx / n, Y: sy / n}
}

// Variance returns the per-axis sample variance of this cone's global
// observations about Mean. A single-observation cone has zero variance,
// which would make its information matrix infinite; callers fall back to a
// small floor (see optgraph.MinVariance) before inverting it.
func (c *Cone) Variance() (varX, varY float64) {
	mean := c.Mean()
	for _, o := range c.Observations {
		dx, dy := o.Global.X-mean.X, o.Global.Y-mean.Y
		varX += dx * dx
		varY += dy * dy
	}
	n := float64(len(c.Observations))
	return varX / n, varY / n
}

// OptimizedOrMean returns the cone's optimized position if it has one, else
// its observed mean — the initial estimate used when adding this cone to a
// fresh optimization graph.
func (c *Cone) OptimizedOrMean() r2.Point {
	if c.Optimized {
		return r2.Point{X: c.OptX, Y: c.OptY}
	}
	return c.Mean()
}

// SetOptimized records a new optimized position for this cone.
func (c *Cone) SetOptimized(x, y float64) {
	c.OptX, c.OptY = x, y
	c.Optimized = true
}

// ResidualAfterOptimization is the distance between a cone's observed mean
// and its optimized position. Used by the map filter to reject cones whose
// optimization drifted far from their raw observations — intentional, per
// design note §9 ("distanceBetweenConesOpt(c,c) ... treat as residual after
// optimization").
func (c *Cone) ResidualAfterOptimization() float64 {
	mean := c.Mean()
	dx, dy := c.OptX-mean.X, c.OptY-mean.Y
	return math.Hypot(dx, dy)
}

// ConnectedPoses returns the distinct pose ids this cone has been observed
// from, in the order first seen.
func (c *Cone) ConnectedPoses() []int {
	seen := make(map[int]bool, len(c.Observations))
	var ids []int
	for _, o := range c.Observations {
		if !seen[o.PoseID] {
			seen[o.PoseID] = true
			ids = append(ids, o.PoseID)
		}
	}
	return ids
}

// LocalObservationForPose returns the local observation recorded for the
// given connected-pose index (as returned by ConnectedPoses), used to build
// the SE2-to-XY measurement for that edge.
func (c *Cone) LocalObservationForPose(poseIdx int) r2.Point {
	ids := c.ConnectedPoses()
	target := ids[poseIdx]
	for _, o := range c.Observations {
		if o.PoseID == target {
			return o.Local
		}
	}
	return r2.Point{}
}

// Bearing returns the azimuth (radians, vehicle frame) and range (meters)
// of this cone's optimized position (falling back to its mean if not yet
// optimized) relative to pose.
func (c *Cone) Bearing(pose Pose) (azimuthRad, rng float64) {
	pos := c.OptimizedOrMean()
	dx, dy := pos.X-pose.X, pos.Y-pose.Y
	cosT, sinT := math.Cos(-pose.Theta), math.Sin(-pose.Theta)
	localX := dx*cosT - dy*sinT
	localY := dx*sinT + dy*cosT
	return math.Atan2(localY, localX), math.Hypot(localX, localY)
}

// PoseVertexIDBase is the pose-graph vertex id offset for pose i in the
// PoseList — pose i's vertex id is PoseVertexIDBase+i (invariant I2: cone
// vertex ids are < PoseVertexIDBase).
const PoseVertexIDBase = 1000

// WorkingList is the ordered sequence of cones accumulated while mapping,
// plus the subset retained as the frozen global map after loop closure.
// Ids are dense 0..len(cones)-1 and equal a cone's position, per invariant
// I2 in spec.md.
type WorkingList struct {
	cones       []*Cone
	essentialMap []*Cone // cones touched by the rolling windowed optimizer; debug-only.
	globalMap   []*Cone
}

// Add appends a new cone, assigning it the next dense id.
func (w *WorkingList) Add(typ int, obs Observation) *Cone {
	c := NewCone(len(w.cones), typ, obs)
	w.cones = append(w.cones, c)
	return c
}

// Cones returns the full working cone list, in insertion (id) order.
func (w *WorkingList) Cones() []*Cone { return w.cones }

// Len returns the number of cones in the working list.
func (w *WorkingList) Len() int { return len(w.cones) }

// At returns the cone with the given id.
func (w *WorkingList) At(id int) *Cone { return w.cones[id] }

// MarkEssential records cones touched by a windowed (non-final) optimization
// pass, for debug-draw parity with the original's m_essentialMap. Purely
// additive bookkeeping; nothing in the engine reads this back functionally.
func (w *WorkingList) MarkEssential(cones []*Cone) {
	w.essentialMap = append(w.essentialMap, cones...)
}

// EssentialMap returns the cones recorded by MarkEssential.
func (w *WorkingList) EssentialMap() []*Cone { return w.essentialMap }

// Freeze copies the currently-valid cones into the frozen global map. The
// engine calls it once, at loop closure, right after the map filter has run.
func (w *WorkingList) Freeze() {
	w.globalMap = w.globalMap[:0]
	for _, c := range w.cones {
		if c.Valid {
			w.globalMap = append(w.globalMap, c)
		}
	}
}

// Map returns the frozen global map (valid only after Freeze has been
// called).
func (w *WorkingList) Map() []*Cone { return w.globalMap }
