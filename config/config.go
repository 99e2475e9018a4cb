// Package config implements functions to assist with attribute evaluation
// for the cone SLAM engine.
package config

import (
	"github.com/edaniels/golog"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Config describes how to configure the cone SLAM engine.
type Config struct {
	GatheringTimeMs      uint32   `json:"gathering_time_ms"`
	SameConeThreshold    float64  `json:"same_cone_threshold"`
	ConeMappingThreshold float64  `json:"cone_mapping_threshold"`
	TimeBetweenKeyframes float64  `json:"time_between_keyframes"`
	ConesPerPacket       int      `json:"cones_per_packet"`
	LapSize              int      `json:"lap_size"`
	ID                   int      `json:"id"`
	GPSCoords            bool     `json:"gps_coords"`
	RefLatitude          *float64 `json:"ref_latitude"`
	RefLongitude         *float64 `json:"ref_longitude"`
	LidarDistToCoG       *float64 `json:"lidar_dist_to_cog"`
}

var (
	errSameConeThresholdMustBePositive    = errors.New("\"same_cone_threshold\" must be positive")
	errConeMappingThresholdMustBePositive = errors.New("\"cone_mapping_threshold\" must be positive")
	errLapSizeMustBePositive              = errors.New("\"lap_size\" must be positive")
)

// FromAttributeMap decodes a generic attribute map (the shape a module's
// configuration arrives in off the wire) into a Config, matching the
// decoder-with-json-tag-names pattern used to turn attribute maps into
// typed config structs.
func FromAttributeMap(attrs map[string]interface{}) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &cfg})
	if err != nil {
		return nil, errors.Wrap(err, "building attribute decoder")
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(err, "decoding attribute map")
	}
	return &cfg, nil
}

// Validate checks the config for the fields this engine cannot safely
// default, mirroring the fail-closed validation style of a SLAM service
// config: required fields surface a field-specific error rather than
// falling through to a zero value.
func (c *Config) Validate(path string) error {
	if c.SameConeThreshold <= 0 {
		return utils.NewConfigValidationError(path, errSameConeThresholdMustBePositive)
	}
	if c.ConeMappingThreshold <= 0 {
		return utils.NewConfigValidationError(path, errConeMappingThresholdMustBePositive)
	}
	if c.LapSize <= 0 {
		return utils.NewConfigValidationError(path, errLapSizeMustBePositive)
	}
	if c.GPSCoords && (c.RefLatitude == nil || c.RefLongitude == nil) {
		return utils.NewConfigValidationFieldRequiredError(path, "ref_latitude/ref_longitude")
	}
	return nil
}

// Default values applied by GetOptionalParameters when a field is left
// unset, matching the original implementation's compiled-in constants.
const (
	DefaultGatheringTimeMs      = 50
	DefaultTimeBetweenKeyframes = 100.0
	DefaultConesPerPacket       = 4
	DefaultLidarDistToCoG       = 1.5
)

// Optional holds the config fields that have a sensible default.
type Optional struct {
	GatheringTimeMs      uint32
	TimeBetweenKeyframes float64
	ConesPerPacket       int
	LidarDistToCoG       float64
}

// GetOptionalParameters sets any unset optional config parameters to their
// default values, matching the teacher's GetOptionalParameters shape. Each
// substitution is logged except the lidar_dist_to_cog default, which is
// applied silently.
func GetOptionalParameters(c *Config, logger golog.Logger) Optional {
	var opt Optional

	opt.GatheringTimeMs = c.GatheringTimeMs
	if opt.GatheringTimeMs == 0 {
		opt.GatheringTimeMs = DefaultGatheringTimeMs
		logger.Debugf("no gathering_time_ms given, setting to default value of %d", DefaultGatheringTimeMs)
	}

	opt.TimeBetweenKeyframes = c.TimeBetweenKeyframes
	if opt.TimeBetweenKeyframes == 0 {
		opt.TimeBetweenKeyframes = DefaultTimeBetweenKeyframes
		logger.Debugf("no time_between_keyframes given, setting to default value of %v", DefaultTimeBetweenKeyframes)
	}

	opt.ConesPerPacket = c.ConesPerPacket
	if opt.ConesPerPacket == 0 {
		opt.ConesPerPacket = DefaultConesPerPacket
		logger.Debugf("no cones_per_packet given, setting to default value of %d", DefaultConesPerPacket)
	}

	opt.LidarDistToCoG = DefaultLidarDistToCoG
	if c.LidarDistToCoG != nil {
		opt.LidarDistToCoG = *c.LidarDistToCoG
	}

	return opt
}
