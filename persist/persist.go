// Package persist writes the debug-only map.txt/pose.txt sink described in
// spec.md §6. Not required for operation; purely a replay/debugging aid.
package persist

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/viam-modules/coneslam/landmark"
)

// WriteMap writes one "x y" line per cone in cones, in order, to w. It does
// not check validity; the engine passes the frozen map, which holds only
// valid cones.
func WriteMap(w io.Writer, cones []*landmark.Cone) error {
	buffered := bufio.NewWriter(w)
	for _, c := range cones {
		pos := c.OptimizedOrMean()
		if _, err := fmt.Fprintf(buffered, "%f %f\n", pos.X, pos.Y); err != nil {
			return errors.Wrap(err, "writing map line")
		}
	}
	return errors.Wrap(buffered.Flush(), "flushing map.txt")
}

// WritePoses writes one "x y theta" line per keyframe pose to w.
func WritePoses(w io.Writer, poses []landmark.Pose) error {
	buffered := bufio.NewWriter(w)
	for _, p := range poses {
		if _, err := fmt.Fprintf(buffered, "%f %f %f\n", p.X, p.Y, p.Theta); err != nil {
			return errors.Wrap(err, "writing pose line")
		}
	}
	return errors.Wrap(buffered.Flush(), "flushing pose.txt")
}

// WriteAll writes both the map and pose sinks, combining any failures from
// either independent write into a single error rather than stopping at the
// first one.
func WriteAll(mapW, poseW io.Writer, cones []*landmark.Cone, poses []landmark.Pose) error {
	return multierr.Combine(
		WriteMap(mapW, cones),
		WritePoses(poseW, poses),
	)
}
