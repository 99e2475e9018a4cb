// Package sensors defines the message shapes the engine consumes and
// produces, and the geodetic projection helper used to turn WGS84 input
// into the local Cartesian frame.
package sensors

import "time"

// PoseMessage carries a combined pose reading: longitude/latitude (already
// Cartesian unless GPSCoords is configured) and heading in radians.
type PoseMessage struct {
	Longitude, Latitude, Heading float64
	ReadingTime                  time.Time
}

// GPSReading is a split WGS84 position reading.
type GPSReading struct {
	Latitude, Longitude float64
	ReadingTime         time.Time
}

// HeadingReading is a split, north-referenced heading reading. CorrectHeading
// rotates such a value by -pi and wraps it to (-pi, pi], the vehicle-frame
// convention the rest of the pipeline assumes.
type HeadingReading struct {
	Heading     float64
	ReadingTime time.Time
}

// AngularVelocityReading carries a yaw rate in rad/s.
type AngularVelocityReading struct {
	YawRate     float64
	ReadingTime time.Time
}

// GroundSpeedReading carries a ground speed in m/s.
type GroundSpeedReading struct {
	GroundSpeed float64
	ReadingTime time.Time
}

// ConeReading is one entry of a combined cone bundle packet.
type ConeReading struct {
	Azimuth, Zenith, Range float64
	Type                   int
}

// ConeBundle is a combined packet: objectId -> reading.
type ConeBundle map[int]ConeReading

// SwitchStateReading is the integer arm/disarm signal; state==2 arms SLAM.
type SwitchStateReading struct {
	State int
}

// PoseOutput is the published pose message shape: geolocation-like
// (x, y, heading), stamped with the configured sender id.
type PoseOutput struct {
	X, Y, Heading float64
	SenderStamp   int
}

// ConeOutput is one published cone: (direction, distance, type), ordered by
// ObjectID so the nearest upcoming cone carries the largest id.
type ConeOutput struct {
	Azimuth, Zenith, Range float64
	Type                   int
	ObjectID               int
}

// PosePublisher publishes one pose output.
type PosePublisher interface {
	PublishPose(PoseOutput) error
}

// ConePublisher publishes one cone output.
type ConePublisher interface {
	PublishCone(ConeOutput) error
}
