package estimate

import (
	"github.com/duckietown/duckietown-intnav/internal/config"
)

// ConfigFromTuning builds a filter Config from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		WorldFrame:              cfg.GetWorldFrame(),
		BodyFrame:               cfg.GetBodyFrame(),
		ProcessNoisePos:         cfg.GetProcessNoisePos(),
		ProcessNoiseHeading:     cfg.GetProcessNoiseHeading(),
		ProcessNoiseLinear:      cfg.GetProcessNoiseLinear(),
		ProcessNoiseAngular:     cfg.GetProcessNoiseAngular(),
		MaxCovarianceDiag:       cfg.GetMaxCovarianceDiag(),
		UninitializedCovariance: cfg.GetUninitializedCovariance(),
		InitFixCount:            cfg.GetInitFixCount(),
		InitVarianceFloor:       cfg.GetInitVarianceFloor(),
	}
}
