package limits

import (
	"github.com/duckietown/duckietown-intnav/internal/config"
)

// ConfigFromTuning builds a limiter Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxLinear:       cfg.GetMaxLinearSpeed(),
		MaxAngular:      cfg.GetMaxAngularSpeed(),
		MaxLinearAccel:  cfg.GetMaxLinearAccel(),
		MaxAngularAccel: cfg.GetMaxAngularAccel(),
		WheelSeparation: cfg.GetWheelSeparation(),
	}
}
