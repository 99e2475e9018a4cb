package keyframe_test

import (
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/viam-modules/coneslam/keyframe"
)

func TestGateAcceptsFirstFrameThenDecimates(t *testing.T) {
	g := keyframe.NewGate(100 * time.Millisecond)
	t0 := time.Unix(0, 0)

	test.That(t, g.Accept(t0), test.ShouldBeTrue)
	test.That(t, g.Accept(t0.Add(50*time.Millisecond)), test.ShouldBeFalse)
	test.That(t, g.Accept(t0.Add(100*time.Millisecond)), test.ShouldBeTrue)
	test.That(t, g.Accept(t0.Add(140*time.Millisecond)), test.ShouldBeFalse)
	test.That(t, g.Accept(t0.Add(210*time.Millisecond)), test.ShouldBeTrue)
}

func TestGateResetReacceptsNextFrame(t *testing.T) {
	g := keyframe.NewGate(time.Second)
	t0 := time.Unix(0, 0)
	test.That(t, g.Accept(t0), test.ShouldBeTrue)
	test.That(t, g.Accept(t0.Add(time.Millisecond)), test.ShouldBeFalse)

	g.Reset()
	test.That(t, g.Accept(t0.Add(2*time.Millisecond)), test.ShouldBeTrue)
}
