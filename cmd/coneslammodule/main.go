// Package main is the process entrypoint that wires the cone SLAM engine
// to its configuration and telemetry, and then idles until the surrounding
// process delivers sensor/message-bus callbacks through the embedding
// program. The engine itself has no transport dependency; a real
// deployment links this module's engine package into a process that owns
// the message bus and sensor components.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/viam-modules/coneslam/config"
	"github.com/viam-modules/coneslam/engine"
	"github.com/viam-modules/coneslam/sensors"
	"github.com/viam-modules/coneslam/telemetry"
)

func main() {
	utils.ContextualMain(mainWithArgs, golog.NewLogger("coneslam"))
}

type noopPosePublisher struct{ logger golog.Logger }

func (p noopPosePublisher) PublishPose(out sensors.PoseOutput) error {
	p.logger.Debugw("pose", "x", out.X, "y", out.Y, "heading", out.Heading)
	return nil
}

type noopConePublisher struct{ logger golog.Logger }

func (p noopConePublisher) PublishCone(out sensors.ConeOutput) error {
	p.logger.Debugw("cone", "id", out.ObjectID, "azimuth", out.Azimuth, "range", out.Range)
	return nil
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	sameConeThreshold := fs.Float64("same-cone-threshold", 0.5, "association distance in meters")
	coneMappingThreshold := fs.Float64("cone-mapping-threshold", 20, "max range to add/update a cone in meters")
	timeBetweenKeyframesMs := fs.Float64("time-between-keyframes-ms", 100, "keyframe interval in milliseconds")
	lapSize := fs.Int("lap-size", 40, "cone-delta threshold for loop closure")
	conesPerPacket := fs.Int("cones-per-packet", 4, "output window size")
	senderID := fs.Int("id", 0, "sender stamp on outgoing messages")
	debugMapPath := fs.String("debug-map-path", "", "optional path to dump the frozen map at loop closure")
	debugPosePath := fs.String("debug-pose-path", "", "optional path to dump keyframe poses at loop closure")
	if err := fs.Parse(args[1:]); err != nil {
		return errors.Wrap(err, "parsing flags")
	}

	cfg := &config.Config{
		SameConeThreshold:    *sameConeThreshold,
		ConeMappingThreshold: *coneMappingThreshold,
		TimeBetweenKeyframes: *timeBetweenKeyframesMs,
		LapSize:              *lapSize,
		ConesPerPacket:       *conesPerPacket,
		ID:                   *senderID,
	}
	if err := cfg.Validate("coneslam"); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	opt := config.GetOptionalParameters(cfg, logger)

	exporter, err := telemetry.Init()
	if err != nil {
		return errors.Wrap(err, "starting telemetry")
	}
	defer exporter.Stop()

	var debugMapWriter, debugPoseWriter *os.File
	if *debugMapPath != "" {
		debugMapWriter, err = os.Create(*debugMapPath)
		if err != nil {
			return errors.Wrap(err, "opening debug map path")
		}
		defer debugMapWriter.Close()
	}
	if *debugPosePath != "" {
		debugPoseWriter, err = os.Create(*debugPosePath)
		if err != nil {
			return errors.Wrap(err, "opening debug pose path")
		}
		defer debugPoseWriter.Close()
	}

	eng := engine.New(engine.Params{
		SameConeThreshold:    cfg.SameConeThreshold,
		ConeMappingThreshold: cfg.ConeMappingThreshold,
		TimeBetweenKeyframes: time.Duration(opt.TimeBetweenKeyframes) * time.Millisecond,
		LapSize:              cfg.LapSize,
		ConesPerPacket:       opt.ConesPerPacket,
		SenderStamp:          cfg.ID,
	}, noopPosePublisher{logger}, noopConePublisher{logger}, logger, writerOrNil(debugMapWriter), writerOrNil(debugPoseWriter))

	// The init gate gates SLAM processing on a sustained GPS/IMU streak; the
	// embedding program feeds it via eng.ReceiveGPS/ReceiveGroundSpeed/
	// ReceiveHeadingReading as those messages arrive off the bus.
	eng.StartInitGate(ctx)

	logger.Info("cone SLAM engine ready; awaiting sensor and message-bus wiring from the embedding program")
	<-ctx.Done()
	return nil
}

// writerOrNil returns f as an io.Writer, or a true nil io.Writer (not a
// non-nil interface wrapping a nil *os.File) when f itself is nil.
func writerOrNil(f *os.File) io.Writer {
	if f == nil {
		return nil
	}
	return f
}
