package nav

import (
	"math"
	"time"
)

// StateDim is the dimension of the estimator state vector
// [x, y, heading, linear velocity, angular velocity].
const StateDim = 5

// Indices into the estimator state vector and its covariance.
const (
	StateX = iota
	StateY
	StateHeading
	StateLinear
	StateAngular
)

// Pose2D is a planar pose. Heading is in radians, normalized to (-pi, pi].
type Pose2D struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// NormalizeHeading wraps an angle into (-pi, pi].
func NormalizeHeading(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// Compose applies p to q, treating p as the transform parent<-mid and q as
// mid<-child, returning parent<-child.
func (p Pose2D) Compose(q Pose2D) Pose2D {
	sin, cos := math.Sincos(p.Heading)
	return Pose2D{
		X:       p.X + cos*q.X - sin*q.Y,
		Y:       p.Y + sin*q.X + cos*q.Y,
		Heading: NormalizeHeading(p.Heading + q.Heading),
	}
}

// Invert returns the inverse transform: if p maps child coordinates into
// parent coordinates, p.Invert() maps parent coordinates into child
// coordinates.
func (p Pose2D) Invert() Pose2D {
	sin, cos := math.Sincos(p.Heading)
	return Pose2D{
		X:       -(cos*p.X + sin*p.Y),
		Y:       -(-sin*p.X + cos*p.Y),
		Heading: NormalizeHeading(-p.Heading),
	}
}

// DistanceTo returns the Euclidean distance between the positions of two poses.
func (p Pose2D) DistanceTo(q Pose2D) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Twist is an instantaneous motion command or estimate, always expressed in
// the robot body frame.
type Twist struct {
	Linear  float64 `json:"linear"`  // forward velocity (m/s)
	Angular float64 `json:"angular"` // yaw rate (rad/s)
}

// IsZero reports whether both components are exactly zero.
func (t Twist) IsZero() bool { return t.Linear == 0 && t.Angular == 0 }

// Transform is a timestamped rigid transform between two named frames.
// Pose maps child-frame coordinates into the parent frame.
type Transform struct {
	Parent string    `json:"parent"`
	Child  string    `json:"child"`
	Pose   Pose2D    `json:"pose"`
	Stamp  time.Time `json:"stamp"`
}

// StateEstimate is the estimator's rolling output: pose and twist with a
// row-major StateDim x StateDim covariance.
type StateEstimate struct {
	Frame      string                      `json:"frame"`
	Pose       Pose2D                      `json:"pose"`
	Twist      Twist                       `json:"twist"`
	Covariance [StateDim * StateDim]float64 `json:"covariance"`
	Stamp      time.Time                   `json:"stamp"`
	// Ready is false while the estimator has not yet accepted an absolute
	// pose fix. Consumers must not act on a not-ready estimate.
	Ready bool `json:"ready"`
}

// CovarianceAt returns the covariance entry for the given state indices.
func (e *StateEstimate) CovarianceAt(i, j int) float64 {
	return e.Covariance[i*StateDim+j]
}

// PositionUncertainty returns the larger of the x/y covariance diagonal
// entries, the figure compared against the command confidence threshold.
func (e *StateEstimate) PositionUncertainty() float64 {
	return math.Max(e.CovarianceAt(StateX, StateX), e.CovarianceAt(StateY, StateY))
}

// Waypoint is a single point of a reference path. Heading and Speed are
// optional hints; nil means the tracker chooses.
type Waypoint struct {
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Heading *float64 `json:"heading,omitempty"`
	Speed   *float64 `json:"speed,omitempty"` // m/s
}

// PathReference is an ordered waypoint sequence in a fixed frame. It is
// immutable once handed to the tracker; a new path replaces it wholesale.
type PathReference struct {
	Frame     string     `json:"frame"`
	Waypoints []Waypoint `json:"waypoints"`
}

// Empty reports whether the path carries no waypoints.
func (p PathReference) Empty() bool { return len(p.Waypoints) == 0 }
