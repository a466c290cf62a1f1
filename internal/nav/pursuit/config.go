package pursuit

import (
	"github.com/duckietown/duckietown-intnav/internal/config"
)

// ConfigFromTuning builds a tracker Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		LookaheadDistance: cfg.GetLookaheadDistance(),
		CruiseSpeed:       cfg.GetCruiseSpeed(),
		GoalTolerance:     cfg.GetGoalTolerance(),
		ConfidenceLimit:   cfg.GetConfidenceLimit(),
	}
}
