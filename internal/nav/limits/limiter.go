// Package limits clamps tracker output to the robot's physical actuation
// bounds and converts bounded twists into differential-drive wheel speeds.
package limits

import (
	"fmt"
	"math"

	"github.com/duckietown/duckietown-intnav/internal/nav"
)

// Config holds the actuation bounds. All values must be positive; a
// violation is fatal at construction, before any command flows.
type Config struct {
	MaxLinear       float64 // |linear velocity| bound (m/s)
	MaxAngular      float64 // |angular velocity| bound (rad/s)
	MaxLinearAccel  float64 // |linear acceleration| bound (m/s^2)
	MaxAngularAccel float64 // |angular acceleration| bound (rad/s^2)

	// WheelSeparation is the differential-drive baseline used by
	// WheelSpeeds (m).
	WheelSeparation float64
}

func (c Config) validate() error {
	for name, v := range map[string]float64{
		"max_linear":        c.MaxLinear,
		"max_angular":       c.MaxAngular,
		"max_linear_accel":  c.MaxLinearAccel,
		"max_angular_accel": c.MaxAngularAccel,
		"wheel_separation":  c.WheelSeparation,
	} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("limiter config %s must be positive, got %g", name, v)
		}
	}
	return nil
}

// Limiter is a pure clamp: it carries no state beyond its configuration,
// the caller supplies the previous output.
type Limiter struct {
	cfg Config
}

// NewLimiter creates a limiter, rejecting invalid bounds.
func NewLimiter(cfg Config) (*Limiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Limiter{cfg: cfg}, nil
}

// Limit clamps the command's magnitudes to the configured maxima and its
// change since prev to the configured accelerations over dt. A non-positive
// dt skips rate limiting and only clamps magnitudes.
func (l *Limiter) Limit(cmd, prev nav.Twist, dt float64) nav.Twist {
	out := nav.Twist{
		Linear:  clamp(cmd.Linear, l.cfg.MaxLinear),
		Angular: clamp(cmd.Angular, l.cfg.MaxAngular),
	}
	if dt <= 0 {
		return out
	}
	out.Linear = ramp(out.Linear, prev.Linear, l.cfg.MaxLinearAccel*dt)
	out.Angular = ramp(out.Angular, prev.Angular, l.cfg.MaxAngularAccel*dt)
	return out
}

// WheelSpeeds converts a bounded twist to left/right wheel rim speeds for
// the actuation collaborator.
func (l *Limiter) WheelSpeeds(t nav.Twist) (left, right float64) {
	half := 0.5 * t.Angular * l.cfg.WheelSeparation
	return t.Linear - half, t.Linear + half
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// ramp bounds the step from prev toward target by maxDelta.
func ramp(target, prev, maxDelta float64) float64 {
	delta := target - prev
	if delta > maxDelta {
		return prev + maxDelta
	}
	if delta < -maxDelta {
		return prev - maxDelta
	}
	return target
}
