// Package emitter publishes the engine's current pose and a wrap-around
// window of upcoming cones through injected publisher callbacks, keeping
// the engine free of any direct transport dependency.
package emitter

import (
	"math"

	"github.com/pkg/errors"

	"github.com/viam-modules/coneslam/landmark"
	"github.com/viam-modules/coneslam/sensors"
)

// Emitter publishes pose and cone output through injected callbacks.
type Emitter struct {
	PosePublisher sensors.PosePublisher
	ConePublisher sensors.ConePublisher
	SenderStamp   int
}

// New returns an Emitter that publishes through the given callbacks.
func New(posePub sensors.PosePublisher, conePub sensors.ConePublisher, senderStamp int) *Emitter {
	return &Emitter{PosePublisher: posePub, ConePublisher: conePub, SenderStamp: senderStamp}
}

// Emit publishes sendPose, then up to conesPerPacket upcoming cones from
// frozenMap starting at ccI, wrapping at length. ObjectID is assigned so the
// nearest upcoming cone carries the largest id (conesPerPacket-1-i).
func (e *Emitter) Emit(sendPose landmark.Pose, frozenMap []*landmark.Cone, ccI, conesPerPacket int) error {
	if err := e.PosePublisher.PublishPose(sensors.PoseOutput{
		X: sendPose.X, Y: sendPose.Y, Heading: sendPose.Theta, SenderStamp: e.SenderStamp,
	}); err != nil {
		return errors.Wrap(err, "publishing pose")
	}

	if len(frozenMap) == 0 {
		return nil
	}

	n := conesPerPacket
	if n > len(frozenMap) {
		n = len(frozenMap)
	}
	for i := 0; i < n; i++ {
		c := frozenMap[(ccI+i)%len(frozenMap)]
		az, rng := c.Bearing(sendPose)
		out := sensors.ConeOutput{
			Azimuth: az * 180 / math.Pi, Zenith: 0, Range: rng, Type: c.Type,
			ObjectID: conesPerPacket - 1 - i,
		}
		if err := e.ConePublisher.PublishCone(out); err != nil {
			return errors.Wrapf(err, "publishing cone %d", i)
		}
	}
	return nil
}
