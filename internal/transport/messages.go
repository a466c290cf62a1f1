package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/duckietown/duckietown-intnav/internal/nav"
	"github.com/duckietown/duckietown-intnav/internal/nav/measure"
)

// Topic names carried over the broker.
const (
	TopicWheels     = "intnav/wheels"
	TopicIMU        = "intnav/imu"
	TopicDetections = "intnav/detections"
	TopicTransforms = "intnav/transforms"
	TopicPath       = "intnav/path"
	TopicReset      = "intnav/reset"
	TopicCommand    = "intnav/cmd"
)

// Fallback observation variances for producers that do not report their
// own. Conservative values for small differential-drive robots.
const (
	defaultVarWheelLinear  = 0.0025 // (m/s)^2
	defaultVarWheelAngular = 0.01   // (rad/s)^2
	defaultVarYawRate      = 0.005  // (rad/s)^2
	defaultVarHeading      = 0.05   // rad^2
	defaultVarPose         = 0.01   // m^2 and rad^2
)

// WheelsMessage is one wheel encoder interval: rolled distances per wheel.
type WheelsMessage struct {
	Stamp      time.Time `json:"stamp"`
	Frame      string    `json:"frame,omitempty"`
	Left       float64   `json:"left"`        // rolled distance (m)
	Right      float64   `json:"right"`       // rolled distance (m)
	IntervalMs float64   `json:"interval_ms"` // integration interval
	VarLinear  *float64  `json:"var_linear,omitempty"`
	VarAngular *float64  `json:"var_angular,omitempty"`
}

// IMUMessage is one gyro sample, optionally with integrated heading.
type IMUMessage struct {
	Stamp      time.Time `json:"stamp"`
	Frame      string    `json:"frame,omitempty"`
	YawRate    float64   `json:"yaw_rate"` // rad/s
	Heading    *float64  `json:"heading,omitempty"`
	VarYawRate *float64  `json:"var_yaw_rate,omitempty"`
	VarHeading *float64  `json:"var_heading,omitempty"`
}

// DetectionMessage is one absolute pose fix against a named anchor frame.
type DetectionMessage struct {
	Stamp      time.Time `json:"stamp"`
	Frame      string    `json:"frame,omitempty"` // anchor frame
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Heading    float64   `json:"heading"`
	VarX       *float64  `json:"var_x,omitempty"`
	VarY       *float64  `json:"var_y,omitempty"`
	VarHeading *float64  `json:"var_heading,omitempty"`
}

// TransformMessage is one timestamped rigid transform between two named
// frames, e.g. an anchor tag's placement in the world frame. Pose maps
// child-frame coordinates into the parent frame.
type TransformMessage struct {
	Stamp   time.Time `json:"stamp"`
	Parent  string    `json:"parent"`
	Child   string    `json:"child"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Heading float64   `json:"heading"`
}

// PathMessage replaces the tracked reference path.
type PathMessage struct {
	Frame     string            `json:"frame"`
	Waypoints []WaypointMessage `json:"waypoints"`
}

// WaypointMessage is one path sample; heading and speed hints are optional.
type WaypointMessage struct {
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Heading *float64 `json:"heading,omitempty"`
	Speed   *float64 `json:"speed,omitempty"`
}

// CommandMessage is the egress schema for one limited command.
type CommandMessage struct {
	Stamp      time.Time `json:"stamp"`
	Linear     float64   `json:"linear"`      // m/s
	Angular    float64   `json:"angular"`     // rad/s
	WheelLeft  float64   `json:"wheel_left"`  // m/s
	WheelRight float64   `json:"wheel_right"` // m/s
	Status     string    `json:"status"`
	Episode    string    `json:"episode,omitempty"`
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// ParseWheels decodes a wheels payload into a measurement. The wheel
// separation comes from configuration, not the wire.
func ParseWheels(payload []byte, separation float64) (measure.WheelDelta, error) {
	var msg WheelsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return measure.WheelDelta{}, fmt.Errorf("wheels payload: %w", err)
	}
	if msg.Stamp.IsZero() {
		return measure.WheelDelta{}, fmt.Errorf("wheels payload missing stamp")
	}
	if msg.IntervalMs <= 0 {
		return measure.WheelDelta{}, fmt.Errorf("wheels payload interval_ms must be positive, got %g", msg.IntervalMs)
	}
	return measure.WheelDelta{
		Time:       msg.Stamp,
		Frame:      msg.Frame,
		Left:       msg.Left,
		Right:      msg.Right,
		Interval:   time.Duration(msg.IntervalMs * float64(time.Millisecond)),
		Separation: separation,
		VarLinear:  orDefault(msg.VarLinear, defaultVarWheelLinear),
		VarAngular: orDefault(msg.VarAngular, defaultVarWheelAngular),
	}, nil
}

// ParseIMU decodes a gyro payload into a measurement.
func ParseIMU(payload []byte) (measure.InertialSample, error) {
	var msg IMUMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return measure.InertialSample{}, fmt.Errorf("imu payload: %w", err)
	}
	if msg.Stamp.IsZero() {
		return measure.InertialSample{}, fmt.Errorf("imu payload missing stamp")
	}
	return measure.InertialSample{
		Time:       msg.Stamp,
		Frame:      msg.Frame,
		YawRate:    msg.YawRate,
		Heading:    msg.Heading,
		VarYawRate: orDefault(msg.VarYawRate, defaultVarYawRate),
		VarHeading: orDefault(msg.VarHeading, defaultVarHeading),
	}, nil
}

// ParseDetection decodes an absolute fix payload into a measurement.
func ParseDetection(payload []byte) (measure.PoseDetection, error) {
	var msg DetectionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return measure.PoseDetection{}, fmt.Errorf("detection payload: %w", err)
	}
	if msg.Stamp.IsZero() {
		return measure.PoseDetection{}, fmt.Errorf("detection payload missing stamp")
	}
	return measure.PoseDetection{
		Time:       msg.Stamp,
		Frame:      msg.Frame,
		Pose:       nav.Pose2D{X: msg.X, Y: msg.Y, Heading: msg.Heading},
		VarX:       orDefault(msg.VarX, defaultVarPose),
		VarY:       orDefault(msg.VarY, defaultVarPose),
		VarHeading: orDefault(msg.VarHeading, defaultVarPose),
	}, nil
}

// ParseTransform decodes a transform payload. Frame name validation is
// left to the registry.
func ParseTransform(payload []byte) (nav.Transform, error) {
	var msg TransformMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nav.Transform{}, fmt.Errorf("transform payload: %w", err)
	}
	if msg.Stamp.IsZero() {
		return nav.Transform{}, fmt.Errorf("transform payload missing stamp")
	}
	return nav.Transform{
		Parent: msg.Parent,
		Child:  msg.Child,
		Pose:   nav.Pose2D{X: msg.X, Y: msg.Y, Heading: msg.Heading},
		Stamp:  msg.Stamp,
	}, nil
}

// ParsePath decodes a path payload. An empty waypoint list is a valid
// message: it aborts the active episode.
func ParsePath(payload []byte) (nav.PathReference, error) {
	var msg PathMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nav.PathReference{}, fmt.Errorf("path payload: %w", err)
	}
	path := nav.PathReference{Frame: msg.Frame}
	for _, wp := range msg.Waypoints {
		path.Waypoints = append(path.Waypoints, nav.Waypoint{
			X: wp.X, Y: wp.Y, Heading: wp.Heading, Speed: wp.Speed,
		})
	}
	return path, nil
}
