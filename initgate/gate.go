// Package initgate implements the SLAM readiness poll loop: the vehicle must
// show a sustained run of valid GPS, IMU-speed, and IMU-heading readings
// before the engine arms itself.
package initgate

import (
	"context"
	"time"

	goutils "go.viam.com/utils"
)

// Poll period and readiness thresholds, matching the original's 50ms loop
// and GPS/IMU streak requirements exactly.
const (
	PollPeriod         = 50 * time.Millisecond
	GPSReadyCount      = 6
	IMUSpeedReadyCount = 31
	IMUHeadingReady    = 31
)

// Counters tracks consecutive valid readings of each kind since the last
// reset (a bad reading resets its own counter to zero).
type Counters struct {
	GPS, IMUSpeed, IMUHeading int
}

// Ready reports whether every counter has reached its threshold.
func (c Counters) Ready() bool {
	return c.GPS >= GPSReadyCount && c.IMUSpeed >= IMUSpeedReadyCount && c.IMUHeading >= IMUHeadingReady
}

// Sampler reports whether the latest GPS, IMU-speed, and IMU-heading
// readings were each valid, for the gate to fold into its counters on each
// poll.
type Sampler interface {
	SampleReady() (gpsValid, imuSpeedValid, imuHeadingValid bool)
}

// Gate runs a background poll loop (grounded on the
// goutils.SelectContextOrWait idiom used throughout the sensor validation
// helpers) accumulating Counters until every threshold is met, then reports
// readiness through Ready().
type Gate struct {
	sampler  Sampler
	counters Counters
}

// NewGate returns a Gate polling sampler every PollPeriod.
func NewGate(sampler Sampler) *Gate {
	return &Gate{sampler: sampler}
}

// Run polls until the gate becomes ready or ctx is cancelled, returning the
// final counters either way.
func (g *Gate) Run(ctx context.Context) Counters {
	for {
		gps, speed, heading := g.sampler.SampleReady()
		g.step(gps, speed, heading)
		if g.counters.Ready() {
			return g.counters
		}
		if !goutils.SelectContextOrWait(ctx, PollPeriod) {
			return g.counters
		}
	}
}

// step folds one sample into the counters, resetting any counter whose
// reading was invalid this round.
func (g *Gate) step(gpsValid, imuSpeedValid, imuHeadingValid bool) {
	g.counters.GPS = bump(g.counters.GPS, gpsValid)
	g.counters.IMUSpeed = bump(g.counters.IMUSpeed, imuSpeedValid)
	g.counters.IMUHeading = bump(g.counters.IMUHeading, imuHeadingValid)
}

func bump(count int, valid bool) int {
	if !valid {
		return 0
	}
	return count + 1
}

// Counters returns the gate's current counters.
func (g *Gate) Counters() Counters { return g.counters }
