// Package mapping implements data association against the in-progress cone
// list and the bookkeeping that drives loop-closure detection.
package mapping

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/viam-modules/coneslam/frame"
	"github.com/viam-modules/coneslam/geometry"
	"github.com/viam-modules/coneslam/landmark"
)

// Associator matches observed cones against the working cone list and grows
// the list with new landmarks, the Go equivalent of createConnections.
type Associator struct {
	transformer geometry.Transformer

	// SameConeThreshold is the max distance between an observation's global
	// position and an existing cone's mean for them to be considered the
	// same landmark.
	SameConeThreshold float64
	// ConeMappingThreshold caps the range at which a new cone may be
	// created, and gates whether a match is close enough to move ccI.
	ConeMappingThreshold float64
}

// NewAssociator returns an Associator with the given thresholds.
func NewAssociator(sameConeThreshold, coneMappingThreshold float64) *Associator {
	return &Associator{
		transformer:          geometry.NewTransformer(),
		SameConeThreshold:    sameConeThreshold,
		ConeMappingThreshold: coneMappingThreshold,
	}
}

// Result carries the outcome of one CreateConnections call: the new
// current-cone-index candidate (if any observation warranted moving it) and
// the signed advance to accumulate into the loop-closure counter.
type Result struct {
	NewCCI     int
	HaveNewCCI bool
	DeltaCC    int
}

// CreateConnections associates every observation in fr against list,
// appending to matched cones and creating new ones for unmatched
// close-enough observations, exactly as described by createConnections.
func (a *Associator) CreateConnections(
	fr frame.Frame,
	pose landmark.Pose,
	poseID int,
	list *landmark.WorkingList,
	ccI int,
) Result {
	newCCI := ccI
	haveNewCCI := false
	bestRangeThisFrame := math.Inf(1)

	// An empty working list means this is the bootstrap call: only column 0
	// of this frame becomes a cone (cone 0), and every other observation in
	// the same frame is dropped rather than matched or added, matching the
	// original's firstCone gate over the whole call.
	firstCone := list.Len() == 0

	for i, o := range fr.Observations {
		local := a.transformer.LocalXY(o)
		global := a.transformer.GlobalXY(geometry.Pose2D(pose), o)
		if !finite(global.X) || !finite(global.Y) {
			continue
		}

		if firstCone {
			if i == 0 {
				obs := landmark.Observation{Local: local, Global: global, PoseID: poseID, ConeIndexAtObservation: ccI}
				c := list.Add(o.Type, obs)
				newCCI, haveNewCCI = c.ID, true
				bestRangeThisFrame = o.Range
			}
			continue
		}

		matched := a.findMatch(list, o.Type, global)
		if matched != nil {
			matched.AddObservation(landmark.Observation{
				Local: local, Global: global, PoseID: poseID, ConeIndexAtObservation: ccI,
			})
			if o.Range < bestRangeThisFrame && o.Range < a.ConeMappingThreshold {
				newCCI, haveNewCCI = matched.ID, true
				bestRangeThisFrame = o.Range
			}
			continue
		}

		if o.Range < a.ConeMappingThreshold {
			list.Add(o.Type, landmark.Observation{
				Local: local, Global: global, PoseID: poseID, ConeIndexAtObservation: ccI,
			})
		}
	}

	delta := 0
	if haveNewCCI {
		delta = newCCI - ccI
	}
	return Result{NewCCI: newCCI, HaveNewCCI: haveNewCCI, DeltaCC: delta}
}

// findMatch searches the working list in insertion order for the first cone
// of matching type within SameConeThreshold of global.
func (a *Associator) findMatch(list *landmark.WorkingList, typ int, global r2.Point) *landmark.Cone {
	for _, c := range list.Cones() {
		if c.Type != typ {
			continue
		}
		if geometry.Distance2D(c.Mean(), global) < a.SameConeThreshold {
			return c
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
