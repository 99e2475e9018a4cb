// Package frame groups per-object cone messages into observation frames,
// either by time-windowed accumulation of individual fields or directly from
// a pre-grouped combined packet.
package frame

import (
	"time"

	"github.com/viam-modules/coneslam/geometry"
)

// Field identifies which of the three per-object messages a buffered value
// came from.
type Field int

// The three fields a frame row needs before it can be emitted, mirroring the
// ObjectDirection/ObjectDistance/ObjectType triple in spec.md §6.
const (
	FieldDirection Field = iota
	FieldDistance
	FieldType
)

// Frame is one assembled observation frame: one geometry.Observation per
// contributing object id, plus the timestamp the frame closed at.
type Frame struct {
	Time         time.Time
	Observations []geometry.Observation
}

type partialRow struct {
	azimuth, zenith, distance float64
	typ                       int
	haveDirection, haveDistance, haveType bool
}

func (r partialRow) complete() bool {
	return r.haveDirection && r.haveDistance && r.haveType
}

// Assembler buffers per-object-id messages until a message arrives whose
// timestamp differs from the frame's reference timestamp by more than
// gatheringTimeMs, at which point the buffered rows are emitted as one Frame
// and the buffer resets. Per spec §4.1, a row missing any of its three
// fields is dropped rather than emitted with undefined values.
type Assembler struct {
	gatheringTime time.Duration

	refTime time.Time
	haveRef bool
	rows    map[int]*partialRow
}

// NewAssembler returns an Assembler that closes a frame once messages start
// arriving more than gatheringTimeMs away from the frame's reference time.
func NewAssembler(gatheringTimeMs uint32) *Assembler {
	return &Assembler{gatheringTime: time.Duration(gatheringTimeMs) * time.Millisecond}
}

// Add buffers one field of one object's observation. If sampleTime falls
// outside the current gathering window, the buffered frame (if any complete
// rows exist) is returned and the buffer resets around sampleTime; otherwise
// Add returns ok=false and the caller should keep streaming fields in.
func (a *Assembler) Add(objectID int, field Field, value float64, sampleTime time.Time) (Frame, bool) {
	var closed Frame
	var haveClosed bool

	if !a.haveRef {
		a.refTime = sampleTime
		a.haveRef = true
		a.rows = make(map[int]*partialRow)
	} else if absDuration(sampleTime.Sub(a.refTime)) > a.gatheringTime {
		closed, haveClosed = a.drain()
		a.refTime = sampleTime
		a.rows = make(map[int]*partialRow)
	}

	row, ok := a.rows[objectID]
	if !ok {
		row = &partialRow{}
		a.rows[objectID] = row
	}
	switch field {
	case FieldDirection:
		row.azimuth, row.haveDirection = value, true
	case FieldDistance:
		row.distance, row.haveDistance = value, true
	case FieldType:
		row.typ, row.haveType = int(value), true
	}

	return closed, haveClosed
}

// AddZenith sets the zenith angle for an object's in-progress row (the
// direction message in spec §6 carries both azimuth and zenith).
func (a *Assembler) AddZenith(objectID int, zenith float64) {
	if row, ok := a.rows[objectID]; ok {
		row.zenith = zenith
	}
}

func (a *Assembler) drain() (Frame, bool) {
	var obs []geometry.Observation
	for _, row := range a.rows {
		if row.complete() {
			obs = append(obs, geometry.Observation{
				Azimuth: row.azimuth,
				Zenith:  row.zenith,
				Range:   row.distance,
				Type:    row.typ,
			})
		}
	}
	if len(obs) == 0 {
		return Frame{}, false
	}
	return Frame{Time: a.refTime, Observations: obs}, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ConeReading is one entry of a pre-grouped combined packet: the preferred
// ingestion path from spec §4.1, where perception has already grouped
// direction/distance/type by object id.
type ConeReading struct {
	Azimuth, Zenith, Range float64
	Type                   int
}

// ConeBundle is a combined packet: objectId -> reading.
type ConeBundle map[int]ConeReading

// FromConeBundle builds a Frame directly from a pre-grouped combined packet,
// with no buffering needed since every field is already present for every
// contributing id.
func FromConeBundle(sampleTime time.Time, bundle ConeBundle) Frame {
	obs := make([]geometry.Observation, 0, len(bundle))
	for _, r := range bundle {
		obs = append(obs, geometry.Observation{
			Azimuth: r.Azimuth,
			Zenith:  r.Zenith,
			Range:   r.Range,
			Type:    r.Type,
		})
	}
	return Frame{Time: sampleTime, Observations: obs}
}
