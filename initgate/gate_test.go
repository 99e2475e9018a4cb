package initgate_test

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/viam-modules/coneslam/initgate"
)

type fakeSampler struct {
	calls int
	ready int // round after which every channel starts reading valid
}

func (f *fakeSampler) SampleReady() (bool, bool, bool) {
	f.calls++
	valid := f.calls > f.ready
	return valid, valid, valid
}

func TestGateBecomesReadyAfterSustainedValidStreak(t *testing.T) {
	sampler := &fakeSampler{ready: 0}
	g := initgate.NewGate(sampler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counters := g.Run(ctx)
	test.That(t, counters.Ready(), test.ShouldBeTrue)
	test.That(t, counters.GPS >= initgate.GPSReadyCount, test.ShouldBeTrue)
}

func TestCountersNotReadyBelowGPSThreshold(t *testing.T) {
	var c initgate.Counters
	c.GPS = 5
	test.That(t, c.Ready(), test.ShouldBeFalse)
}

func TestGateRespectsContextCancellation(t *testing.T) {
	sampler := &fakeSampler{ready: 1000000}
	g := initgate.NewGate(sampler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	counters := g.Run(ctx)
	test.That(t, counters.Ready(), test.ShouldBeFalse)
}
