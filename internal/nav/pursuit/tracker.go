package pursuit

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/duckietown/duckietown-intnav/internal/monitoring"
	"github.com/duckietown/duckietown-intnav/internal/nav"
)

// Status is the tracker's per-command signal alongside the Twist.
type Status string

const (
	// StatusTracking means the returned Twist steers toward the path.
	StatusTracking Status = "tracking"
	// StatusComplete means the estimate reached the final waypoint; the
	// returned Twist is zero.
	StatusComplete Status = "complete"
	// StatusAborted means the episode was cancelled by an empty path; the
	// returned Twist is zero.
	StatusAborted Status = "aborted"
	// StatusNotReady means the estimate was not trustworthy enough to act
	// on; the returned Twist is zero.
	StatusNotReady Status = "not_ready"
	// StatusIdle means no reference path has ever been set; the returned
	// Twist is zero.
	StatusIdle Status = "idle"
)

// Config holds the tracker's policy parameters. They are required inputs;
// the zero value is not usable.
type Config struct {
	LookaheadDistance float64 // goal point distance along the path (m)
	CruiseSpeed       float64 // linear speed when waypoints carry no hint (m/s)
	GoalTolerance     float64 // distance to the final waypoint that counts as arrival (m)

	// ConfidenceLimit is the maximum acceptable position covariance
	// diagonal; estimates above it are refused.
	ConfidenceLimit float64
}

func (c Config) validate() error {
	for name, v := range map[string]float64{
		"lookahead_distance": c.LookaheadDistance,
		"cruise_speed":       c.CruiseSpeed,
		"goal_tolerance":     c.GoalTolerance,
		"confidence_limit":   c.ConfidenceLimit,
	} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("tracker config %s must be positive, got %g", name, v)
		}
	}
	return nil
}

// Tracker tracks one reference path at a time. SetPath replaces the active
// path atomically; ComputeCommand is side-effect free apart from reading it.
type Tracker struct {
	mu        sync.Mutex
	cfg       Config
	path      nav.PathReference
	episode   string // uuid of the active tracking episode, "" when idle
	aborted   bool
	completed bool
}

// NewTracker creates a tracker. Configuration violations are fatal here.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Tracker{cfg: cfg}, nil
}

// SetPath replaces the active reference wholesale and starts a new episode.
// An empty path aborts the current episode: the next ComputeCommand returns
// a zero Twist and StatusAborted rather than steering toward a stale target.
func (t *Tracker) SetPath(path nav.PathReference) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if path.Empty() {
		if t.episode != "" {
			monitoring.Logf("pursuit: episode %s aborted", t.episode)
		}
		t.path = nav.PathReference{}
		t.episode = ""
		t.aborted = true
		t.completed = false
		return
	}
	t.path = path
	t.episode = uuid.NewString()
	t.aborted = false
	t.completed = false
	monitoring.Logf("pursuit: episode %s tracking %d waypoints in %q", t.episode, len(path.Waypoints), path.Frame)
}

// Episode returns the active episode ID, or "" when no path is active.
func (t *Tracker) Episode() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.episode
}

// Path returns a copy of the active reference path. Empty when idle.
func (t *Tracker) Path() nav.PathReference {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.path
	out.Waypoints = append([]nav.Waypoint(nil), t.path.Waypoints...)
	return out
}

// ComputeCommand returns the Twist steering the estimate toward the active
// path, plus the tracking status. All terminal and refusal cases return a
// zero Twist.
func (t *Tracker) ComputeCommand(est nav.StateEstimate) (nav.Twist, Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path.Empty() {
		switch {
		case t.aborted:
			return nav.Twist{}, StatusAborted
		case t.completed:
			return nav.Twist{}, StatusComplete
		default:
			return nav.Twist{}, StatusIdle
		}
	}
	if !est.Ready || est.PositionUncertainty() > t.cfg.ConfidenceLimit {
		return nav.Twist{}, StatusNotReady
	}

	wps := t.path.Waypoints
	last := wps[len(wps)-1]
	if math.Hypot(last.X-est.Pose.X, last.Y-est.Pose.Y) <= t.cfg.GoalTolerance {
		monitoring.Logf("pursuit: episode %s complete", t.episode)
		t.path = nav.PathReference{}
		t.episode = ""
		t.completed = true
		return nav.Twist{}, StatusComplete
	}

	goal := t.goalPoint(est.Pose)

	// Express the goal in the vehicle frame: x forward, y left.
	dx := goal.X - est.Pose.X
	dy := goal.Y - est.Pose.Y
	sin, cos := math.Sincos(est.Pose.Heading)
	gx := cos*dx + sin*dy
	gy := -sin*dx + cos*dy

	speed := t.cfg.CruiseSpeed
	if goal.Speed != nil && *goal.Speed > 0 {
		speed = *goal.Speed
	}

	// Pure pursuit: the circle through the vehicle and the goal point has
	// curvature 2*y_l / L^2.
	l2 := gx*gx + gy*gy
	if l2 < 1e-12 {
		return nav.Twist{Linear: speed}, StatusTracking
	}
	curvature := 2 * gy / l2
	return nav.Twist{Linear: speed, Angular: speed * curvature}, StatusTracking
}

// goalPoint picks the waypoint one lookahead distance past the projection
// of the pose onto the path, falling back to the final waypoint when the
// remaining path is shorter than the lookahead.
func (t *Tracker) goalPoint(pose nav.Pose2D) nav.Waypoint {
	wps := t.path.Waypoints

	// Nearest waypoint to the current position.
	nearest := 0
	best := math.Inf(1)
	for i, wp := range wps {
		d := math.Hypot(wp.X-pose.X, wp.Y-pose.Y)
		if d < best {
			best = d
			nearest = i
		}
	}

	// First waypoint at or beyond the lookahead distance from the
	// projection, measured along the remaining waypoints.
	anchor := wps[nearest]
	for _, wp := range wps[nearest:] {
		if math.Hypot(wp.X-anchor.X, wp.Y-anchor.Y) >= t.cfg.LookaheadDistance {
			return wp
		}
	}
	return wps[len(wps)-1]
}
