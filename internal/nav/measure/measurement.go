package measure

import (
	"fmt"
	"time"

	"github.com/duckietown/duckietown-intnav/internal/nav"
	"github.com/duckietown/duckietown-intnav/internal/nav/frames"
)

// Kind names a measurement variant.
type Kind string

const (
	KindWheelDelta Kind = "wheel_delta"
	KindInertial   Kind = "inertial"
	KindPose       Kind = "pose_detection"
)

// FrameContext is what a measurement needs to resolve itself into the
// estimator's frames.
type FrameContext struct {
	Registry   *frames.Registry
	WorldFrame string // frame the estimated pose lives in
	BodyFrame  string // robot body frame
}

// Observation is the linearized view of a measurement against a predicted
// state: the residual (measured minus predicted), the observation Jacobian
// with one row per residual entry over the state vector
// [x, y, heading, v, omega], and the measurement noise covariance.
type Observation struct {
	Residual []float64
	Jacobian [][]float64
	Noise    [][]float64
}

// Measurement is the closed union of sensor observations the estimator
// fuses. Implementations map themselves into the estimator's frame and
// report nav.ErrFrameNotConnected when they cannot.
type Measurement interface {
	Stamp() time.Time
	SourceFrame() string
	Kind() Kind
	Observe(pose nav.Pose2D, twist nav.Twist, fc FrameContext) (Observation, error)
}

// diag builds a square diagonal noise matrix from variances.
func diag(vars ...float64) [][]float64 {
	m := make([][]float64, len(vars))
	for i, v := range vars {
		m[i] = make([]float64, len(vars))
		m[i][i] = v
	}
	return m
}

// WheelDelta is a pair of per-wheel rolled distances over an interval,
// produced by the wheel encoders. It observes the body linear and angular
// velocity.
type WheelDelta struct {
	Time       time.Time
	Frame      string
	Left       float64       // left wheel rolled distance (m)
	Right      float64       // right wheel rolled distance (m)
	Interval   time.Duration // integration interval
	Separation float64       // wheel separation baseline (m)

	VarLinear  float64 // velocity observation variance ((m/s)^2)
	VarAngular float64 // yaw rate observation variance ((rad/s)^2)
}

func (m WheelDelta) Stamp() time.Time    { return m.Time }
func (m WheelDelta) SourceFrame() string { return m.Frame }
func (m WheelDelta) Kind() Kind          { return KindWheelDelta }

// Observe converts the wheel deltas to body velocities via differential
// drive kinematics and expresses them against the predicted twist.
func (m WheelDelta) Observe(_ nav.Pose2D, twist nav.Twist, fc FrameContext) (Observation, error) {
	dt := m.Interval.Seconds()
	if dt <= 0 {
		return Observation{}, fmt.Errorf("wheel delta has non-positive interval %v", m.Interval)
	}
	if m.Separation <= 0 {
		return Observation{}, fmt.Errorf("wheel delta has non-positive separation %g", m.Separation)
	}
	if m.Frame != "" && m.Frame != fc.BodyFrame {
		if _, err := fc.Registry.Lookup(fc.BodyFrame, m.Frame, m.Time); err != nil {
			return Observation{}, fmt.Errorf("wheel delta frame %q: %w", m.Frame, err)
		}
	}

	v := (m.Left + m.Right) / (2 * dt)
	w := (m.Right - m.Left) / (m.Separation * dt)
	return Observation{
		Residual: []float64{v - twist.Linear, w - twist.Angular},
		Jacobian: [][]float64{
			{0, 0, 0, 1, 0},
			{0, 0, 0, 0, 1},
		},
		Noise: diag(m.VarLinear, m.VarAngular),
	}, nil
}

// InertialSample is a gyro reading: a yaw rate, optionally accompanied by
// the sensor's integrated heading. The yaw rate observes the body angular
// velocity; the heading, when present, corrects heading drift.
type InertialSample struct {
	Time    time.Time
	Frame   string
	YawRate float64  // rad/s, planar
	Heading *float64 // integrated heading of the sensor frame (rad), optional

	VarYawRate float64 // yaw rate variance ((rad/s)^2)
	VarHeading float64 // heading variance (rad^2), used when Heading is set
}

func (m InertialSample) Stamp() time.Time    { return m.Time }
func (m InertialSample) SourceFrame() string { return m.Frame }
func (m InertialSample) Kind() Kind          { return KindInertial }

// Observe maps the sample into the body frame. Planar yaw rate is invariant
// under the rigid mount transform; the integrated heading is shifted by the
// mount yaw.
func (m InertialSample) Observe(pose nav.Pose2D, twist nav.Twist, fc FrameContext) (Observation, error) {
	mountYaw := 0.0
	if m.Frame != "" && m.Frame != fc.BodyFrame {
		mount, err := fc.Registry.Lookup(fc.BodyFrame, m.Frame, m.Time)
		if err != nil {
			return Observation{}, fmt.Errorf("inertial frame %q: %w", m.Frame, err)
		}
		mountYaw = mount.Heading
	}

	obs := Observation{
		Residual: []float64{m.YawRate - twist.Angular},
		Jacobian: [][]float64{{0, 0, 0, 0, 1}},
		Noise:    diag(m.VarYawRate),
	}
	if m.Heading != nil {
		bodyHeading := nav.NormalizeHeading(*m.Heading - mountYaw)
		obs.Residual = append(obs.Residual, nav.NormalizeHeading(bodyHeading-pose.Heading))
		obs.Jacobian = append(obs.Jacobian, []float64{0, 0, 1, 0, 0})
		obs.Noise = diag(m.VarYawRate, m.VarHeading)
	}
	return obs, nil
}

// PoseDetection is a discrete absolute fix: the body pose observed relative
// to a known anchor frame (a landmark the perception front-end has already
// resolved). It observes x, y and heading.
type PoseDetection struct {
	Time  time.Time
	Frame string     // anchor frame the detection is expressed in
	Pose  nav.Pose2D // body pose in the anchor frame

	VarX       float64 // m^2
	VarY       float64 // m^2
	VarHeading float64 // rad^2
}

func (m PoseDetection) Stamp() time.Time    { return m.Time }
func (m PoseDetection) SourceFrame() string { return m.Frame }
func (m PoseDetection) Kind() Kind          { return KindPose }

// Resolve maps the detected body pose into the estimator's world frame via
// the registered anchor transform.
func (m PoseDetection) Resolve(fc FrameContext) (nav.Pose2D, error) {
	if m.Frame == "" || m.Frame == fc.WorldFrame {
		return m.Pose, nil
	}
	anchor, err := fc.Registry.Lookup(fc.WorldFrame, m.Frame, m.Time)
	if err != nil {
		return nav.Pose2D{}, fmt.Errorf("pose detection anchor %q: %w", m.Frame, err)
	}
	return anchor.Compose(m.Pose), nil
}

// Observe expresses the resolved absolute pose against the predicted pose.
func (m PoseDetection) Observe(pose nav.Pose2D, _ nav.Twist, fc FrameContext) (Observation, error) {
	z, err := m.Resolve(fc)
	if err != nil {
		return Observation{}, err
	}
	return Observation{
		Residual: []float64{
			z.X - pose.X,
			z.Y - pose.Y,
			nav.NormalizeHeading(z.Heading - pose.Heading),
		},
		Jacobian: [][]float64{
			{1, 0, 0, 0, 0},
			{0, 1, 0, 0, 0},
			{0, 0, 1, 0, 0},
		},
		Noise: diag(m.VarX, m.VarY, m.VarHeading),
	}, nil
}
