package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the navigation core's policy parameters. All fields
// are optional pointers: fields omitted from the JSON file fall back to the
// defaults baked into the Get* accessors, so partial configs are safe. The
// schema doubles as the payload of the /api/nav/params endpoint.
type TuningConfig struct {
	// Measurement intake
	ReorderWindow  *string `json:"reorder_window,omitempty"` // duration string like "120ms"
	BufferCapacity *int    `json:"buffer_capacity,omitempty"`

	// Frames
	WorldFrame       *string `json:"world_frame,omitempty"`
	BodyFrame        *string `json:"body_frame,omitempty"`
	TransformHistory *int    `json:"transform_history,omitempty"` // samples retained per edge

	// Estimator
	ProcessNoisePos         *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseHeading     *float64 `json:"process_noise_heading,omitempty"`
	ProcessNoiseLinear      *float64 `json:"process_noise_linear,omitempty"`
	ProcessNoiseAngular     *float64 `json:"process_noise_angular,omitempty"`
	MaxCovarianceDiag       *float64 `json:"max_covariance_diag,omitempty"`
	UninitializedCovariance *float64 `json:"uninitialized_covariance,omitempty"`
	InitFixCount            *int     `json:"init_fix_count,omitempty"`
	InitVarianceFloor       *float64 `json:"init_variance_floor,omitempty"`

	// Path tracking
	LookaheadDistance *float64 `json:"lookahead_distance,omitempty"`
	CruiseSpeed       *float64 `json:"cruise_speed,omitempty"`
	GoalTolerance     *float64 `json:"goal_tolerance,omitempty"`
	ConfidenceLimit   *float64 `json:"confidence_limit,omitempty"`

	// Actuation bounds
	MaxLinearSpeed  *float64 `json:"max_linear_speed,omitempty"`
	MaxAngularSpeed *float64 `json:"max_angular_speed,omitempty"`
	MaxLinearAccel  *float64 `json:"max_linear_accel,omitempty"`
	MaxAngularAccel *float64 `json:"max_angular_accel,omitempty"`
	WheelSeparation *float64 `json:"wheel_separation,omitempty"`

	// Loop
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "50ms"
	TrailLength  *int    `json:"trail_length,omitempty"`  // pose trail retention
}

// EmptyTuningConfig returns a TuningConfig with all fields unset; every
// accessor then answers with its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Omitted fields
// retain their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults file and panics on
// failure. Intended for tests and tools that have already validated
// config availability; binaries should call LoadTuningConfig and handle
// the error.
func MustLoadDefaultConfig() *TuningConfig {
	cfg, err := LoadTuningConfig(DefaultConfigPath)
	if err != nil {
		panic(fmt.Sprintf("cannot load default tuning config: %v", err))
	}
	return cfg
}

// Validate checks format and cross-field constraints on set fields. Range
// checks on individual tuning values happen where the values are consumed,
// at component construction.
func (c *TuningConfig) Validate() error {
	if c.ReorderWindow != nil && *c.ReorderWindow != "" {
		d, err := time.ParseDuration(*c.ReorderWindow)
		if err != nil {
			return fmt.Errorf("invalid reorder_window %q: %w", *c.ReorderWindow, err)
		}
		if d < 0 {
			return fmt.Errorf("reorder_window must not be negative, got %s", d)
		}
	}
	if c.TickInterval != nil && *c.TickInterval != "" {
		d, err := time.ParseDuration(*c.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid tick_interval %q: %w", *c.TickInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_interval must be positive, got %s", d)
		}
	}
	if c.BufferCapacity != nil && *c.BufferCapacity < 0 {
		return fmt.Errorf("buffer_capacity must be non-negative, got %d", *c.BufferCapacity)
	}
	if c.InitFixCount != nil && *c.InitFixCount < 1 {
		return fmt.Errorf("init_fix_count must be at least 1, got %d", *c.InitFixCount)
	}
	if c.TrailLength != nil && *c.TrailLength < 0 {
		return fmt.Errorf("trail_length must be non-negative, got %d", *c.TrailLength)
	}
	if c.WorldFrame != nil && c.BodyFrame != nil && *c.WorldFrame == *c.BodyFrame {
		return fmt.Errorf("world_frame and body_frame must differ, both are %q", *c.WorldFrame)
	}
	return nil
}

// GetReorderWindow parses and returns the reorder window duration.
func (c *TuningConfig) GetReorderWindow() time.Duration {
	if c.ReorderWindow == nil || *c.ReorderWindow == "" {
		return 120 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.ReorderWindow)
	if err != nil || d < 0 {
		return 120 * time.Millisecond // default on parse error
	}
	return d
}

// GetTickInterval parses and returns the loop tick interval.
func (c *TuningConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 50 * time.Millisecond // default: 20 Hz
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond
	}
	return d
}

// GetBufferCapacity returns the measurement buffer capacity.
func (c *TuningConfig) GetBufferCapacity() int {
	if c.BufferCapacity == nil || *c.BufferCapacity <= 0 {
		return 256
	}
	return *c.BufferCapacity
}

// GetWorldFrame returns the world frame name.
func (c *TuningConfig) GetWorldFrame() string {
	if c.WorldFrame == nil || *c.WorldFrame == "" {
		return "map"
	}
	return *c.WorldFrame
}

// GetBodyFrame returns the robot body frame name.
func (c *TuningConfig) GetBodyFrame() string {
	if c.BodyFrame == nil || *c.BodyFrame == "" {
		return "base"
	}
	return *c.BodyFrame
}

// GetTransformHistory returns the per-edge transform sample retention.
func (c *TuningConfig) GetTransformHistory() int {
	if c.TransformHistory == nil || *c.TransformHistory <= 0 {
		return 64
	}
	return *c.TransformHistory
}

// GetProcessNoisePos returns the position process noise density (m^2/s).
func (c *TuningConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 0.01
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseHeading returns the heading process noise density (rad^2/s).
func (c *TuningConfig) GetProcessNoiseHeading() float64 {
	if c.ProcessNoiseHeading == nil {
		return 0.02
	}
	return *c.ProcessNoiseHeading
}

// GetProcessNoiseLinear returns the linear velocity process noise density.
func (c *TuningConfig) GetProcessNoiseLinear() float64 {
	if c.ProcessNoiseLinear == nil {
		return 0.05
	}
	return *c.ProcessNoiseLinear
}

// GetProcessNoiseAngular returns the angular velocity process noise density.
func (c *TuningConfig) GetProcessNoiseAngular() float64 {
	if c.ProcessNoiseAngular == nil {
		return 0.1
	}
	return *c.ProcessNoiseAngular
}

// GetMaxCovarianceDiag returns the covariance diagonal cap.
func (c *TuningConfig) GetMaxCovarianceDiag() float64 {
	if c.MaxCovarianceDiag == nil {
		return 100.0
	}
	return *c.MaxCovarianceDiag
}

// GetUninitializedCovariance returns the pose covariance pinned while the
// estimator has no absolute fix.
func (c *TuningConfig) GetUninitializedCovariance() float64 {
	if c.UninitializedCovariance == nil {
		return 1e6
	}
	return *c.UninitializedCovariance
}

// GetInitFixCount returns how many absolute fixes initialize the filter.
func (c *TuningConfig) GetInitFixCount() int {
	if c.InitFixCount == nil || *c.InitFixCount < 1 {
		return 3
	}
	return *c.InitFixCount
}

// GetInitVarianceFloor returns the minimum variance seeded at initialization.
func (c *TuningConfig) GetInitVarianceFloor() float64 {
	if c.InitVarianceFloor == nil {
		return 0.01
	}
	return *c.InitVarianceFloor
}

// GetLookaheadDistance returns the pure-pursuit lookahead distance (m).
func (c *TuningConfig) GetLookaheadDistance() float64 {
	if c.LookaheadDistance == nil {
		return 0.1
	}
	return *c.LookaheadDistance
}

// GetCruiseSpeed returns the default linear speed (m/s).
func (c *TuningConfig) GetCruiseSpeed() float64 {
	if c.CruiseSpeed == nil {
		return 0.1
	}
	return *c.CruiseSpeed
}

// GetGoalTolerance returns the arrival tolerance around the final waypoint (m).
func (c *TuningConfig) GetGoalTolerance() float64 {
	if c.GoalTolerance == nil {
		return 0.05
	}
	return *c.GoalTolerance
}

// GetConfidenceLimit returns the position covariance ceiling above which
// commands are refused.
func (c *TuningConfig) GetConfidenceLimit() float64 {
	if c.ConfidenceLimit == nil {
		return 0.5
	}
	return *c.ConfidenceLimit
}

// GetMaxLinearSpeed returns the linear speed bound (m/s).
func (c *TuningConfig) GetMaxLinearSpeed() float64 {
	if c.MaxLinearSpeed == nil {
		return 0.5
	}
	return *c.MaxLinearSpeed
}

// GetMaxAngularSpeed returns the angular speed bound (rad/s).
func (c *TuningConfig) GetMaxAngularSpeed() float64 {
	if c.MaxAngularSpeed == nil {
		return 4.0
	}
	return *c.MaxAngularSpeed
}

// GetMaxLinearAccel returns the linear acceleration bound (m/s^2).
func (c *TuningConfig) GetMaxLinearAccel() float64 {
	if c.MaxLinearAccel == nil {
		return 1.0
	}
	return *c.MaxLinearAccel
}

// GetMaxAngularAccel returns the angular acceleration bound (rad/s^2).
func (c *TuningConfig) GetMaxAngularAccel() float64 {
	if c.MaxAngularAccel == nil {
		return 8.0
	}
	return *c.MaxAngularAccel
}

// GetWheelSeparation returns the differential-drive baseline (m).
func (c *TuningConfig) GetWheelSeparation() float64 {
	if c.WheelSeparation == nil {
		return 0.102
	}
	return *c.WheelSeparation
}

// GetTrailLength returns how many recent poses the loop retains.
func (c *TuningConfig) GetTrailLength() int {
	if c.TrailLength == nil || *c.TrailLength <= 0 {
		return 600
	}
	return *c.TrailLength
}
