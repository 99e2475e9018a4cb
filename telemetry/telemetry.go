// Package telemetry sets up perf reporting for the cone SLAM engine.
package telemetry

import (
	"time"

	"go.viam.com/utils/perf"
)

// ReportingInterval is how often the exporter flushes collected stats.
const ReportingInterval = time.Second

// Init starts a development perf exporter so per-phase timings (keyframe
// ingestion, windowed optimization, full BA, localization) can be reported
// the same way the rest of the viam stack reports them.
func Init() (perf.Exporter, error) {
	exporter := perf.NewDevelopmentExporterWithOptions(perf.DevelopmentExporterOptions{
		ReportingInterval: ReportingInterval,
	})
	if err := exporter.Start(); err != nil {
		return nil, err
	}
	return exporter, nil
}
