package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/duckietown/duckietown-intnav/internal/config"
	"github.com/duckietown/duckietown-intnav/internal/monitoring"
	"github.com/duckietown/duckietown-intnav/internal/nav"
	"github.com/duckietown/duckietown-intnav/internal/nav/estimate"
	"github.com/duckietown/duckietown-intnav/internal/nav/frames"
	"github.com/duckietown/duckietown-intnav/internal/nav/limits"
	"github.com/duckietown/duckietown-intnav/internal/nav/measure"
	"github.com/duckietown/duckietown-intnav/internal/nav/pursuit"
	"github.com/duckietown/duckietown-intnav/internal/timeutil"
)

// Command is one finished control decision, ready for actuation.
type Command struct {
	Twist      nav.Twist      `json:"twist"`
	WheelLeft  float64        `json:"wheel_left"`  // left rim speed (m/s)
	WheelRight float64        `json:"wheel_right"` // right rim speed (m/s)
	Status     pursuit.Status `json:"status"`
	Episode    string         `json:"episode,omitempty"`
	Stamp      time.Time      `json:"stamp"`
}

// CommandSink receives every tick's limited command. Implementations must
// not block; delivery failures are theirs to log and absorb.
type CommandSink interface {
	PublishCommand(cmd Command)
}

// Recorder persists estimates, commands and anomalies. A nil Recorder
// disables persistence. Errors are logged, never propagated into the loop.
type Recorder interface {
	RecordEstimate(est nav.StateEstimate) error
	RecordCommand(cmd Command) error
	RecordAnomaly(kind, detail string, stamp time.Time) error
}

// Anomaly kinds recorded by the loop.
const (
	AnomalyStale     = "stale_measurement"
	AnomalyFrameMiss = "frame_miss"
	AnomalyNumerical = "numerical_fault"
)

// Counters is a snapshot of the loop's anomaly and throughput counters.
type Counters struct {
	Ticks           int64 `json:"ticks"`
	Corrections     int64 `json:"corrections"`
	StaleDropped    int64 `json:"stale_dropped"`
	FrameMisses     int64 `json:"frame_misses"`
	NumericalFaults int64 `json:"numerical_faults"`
	Commands        int64 `json:"commands"`
}

// TrailPoint is one recorded pose of the bounded trajectory trail.
type TrailPoint struct {
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Heading float64   `json:"heading"`
	Stamp   time.Time `json:"stamp"`
}

// Snapshot is the monitor-facing view of the loop's state.
type Snapshot struct {
	Mode       estimate.Mode       `json:"mode"`
	Episode    string              `json:"episode,omitempty"`
	LastStatus pursuit.Status      `json:"last_status"`
	Estimate   nav.StateEstimate   `json:"estimate"`
	Counters   Counters            `json:"counters"`
	Buffer     measure.BufferStats `json:"buffer"`
}

// Loop owns the sequential drain-fuse-steer-limit cycle.
type Loop struct {
	registry *frames.Registry
	buffer   *measure.Buffer
	filter   *estimate.Filter
	tracker  *pursuit.Tracker
	limiter  *limits.Limiter
	sink     CommandSink
	recorder Recorder

	tick        time.Duration
	trailLength int
	clock       timeutil.Clock

	mu         sync.Mutex
	counters   Counters
	trail      []TrailPoint
	lastStatus pursuit.Status
	prevCmd    nav.Twist
	prevTick   time.Time
	ticked     bool
}

// Option overrides a Loop default.
type Option func(*Loop)

// WithRecorder attaches a persistence recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithClock replaces the wall clock, for tests and replay tools.
func WithClock(clock timeutil.Clock) Option {
	return func(l *Loop) { l.clock = clock }
}

// NewLoop assembles the full pipeline from a tuning config. The sink is
// required; construction fails on any invalid tuning value.
func NewLoop(cfg *config.TuningConfig, registry *frames.Registry, sink CommandSink, opts ...Option) (*Loop, error) {
	if registry == nil {
		return nil, fmt.Errorf("pipeline needs a frame registry")
	}
	if sink == nil {
		return nil, fmt.Errorf("pipeline needs a command sink")
	}

	buffer, err := measure.NewBuffer(cfg.GetReorderWindow(), cfg.GetBufferCapacity())
	if err != nil {
		return nil, fmt.Errorf("measurement buffer: %w", err)
	}
	filter, err := estimate.NewFilter(estimate.ConfigFromTuning(cfg), registry)
	if err != nil {
		return nil, fmt.Errorf("state estimator: %w", err)
	}
	tracker, err := pursuit.NewTracker(pursuit.ConfigFromTuning(cfg))
	if err != nil {
		return nil, fmt.Errorf("path tracker: %w", err)
	}
	limiter, err := limits.NewLimiter(limits.ConfigFromTuning(cfg))
	if err != nil {
		return nil, fmt.Errorf("command limiter: %w", err)
	}

	l := &Loop{
		registry:    registry,
		buffer:      buffer,
		filter:      filter,
		tracker:     tracker,
		limiter:     limiter,
		sink:        sink,
		tick:        cfg.GetTickInterval(),
		trailLength: cfg.GetTrailLength(),
		clock:       timeutil.RealClock{},
		lastStatus:  pursuit.StatusNotReady,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Registry returns the frame registry the loop fuses against.
func (l *Loop) Registry() *frames.Registry { return l.registry }

// Enqueue hands a measurement to the intake buffer. Safe for concurrent
// use by any producer. Stale measurements are counted and rejected.
func (l *Loop) Enqueue(m measure.Measurement) error {
	err := l.buffer.Enqueue(m)
	if err != nil && errors.Is(err, nav.ErrMeasurementStale) {
		l.noteAnomaly(AnomalyStale, err.Error(), m.Stamp())
	}
	return err
}

// SetPath replaces the tracked reference path.
func (l *Loop) SetPath(path nav.PathReference) {
	l.tracker.SetPath(path)
}

// Path returns a copy of the active reference path.
func (l *Loop) Path() nav.PathReference {
	return l.tracker.Path()
}

// Estimate returns the most recent state estimate.
func (l *Loop) Estimate() nav.StateEstimate {
	return l.filter.Current()
}

// Reset re-arms the estimator: the filter returns to Uninitialized and the
// trail and command ramp state are cleared. Counters are cumulative run
// diagnostics and survive; the active path stays set, so tracking resumes
// once enough fresh fixes arrive.
func (l *Loop) Reset() {
	l.filter.Reset()
	l.mu.Lock()
	l.trail = nil
	l.prevCmd = nav.Twist{}
	l.ticked = false
	l.lastStatus = pursuit.StatusNotReady
	l.mu.Unlock()
	monitoring.Logf("pipeline: reset to %s", l.filter.Mode())
}

// Status returns a snapshot of the loop for the monitor server.
func (l *Loop) Status() Snapshot {
	l.mu.Lock()
	counters := l.counters
	lastStatus := l.lastStatus
	l.mu.Unlock()
	return Snapshot{
		Mode:       l.filter.Mode(),
		Episode:    l.tracker.Episode(),
		LastStatus: lastStatus,
		Estimate:   l.filter.Current(),
		Counters:   counters,
		Buffer:     l.buffer.Stats(),
	}
}

// Trail returns a copy of the bounded pose trail, oldest first.
func (l *Loop) Trail() []TrailPoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TrailPoint, len(l.trail))
	copy(out, l.trail)
	return out
}

// Run ticks the loop at the configured interval until the context is
// cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			l.Tick(l.clock.Now())
		}
	}
}

// Tick runs one fuse-and-control cycle against the given horizon. Exposed
// so tests and replay tools can drive the loop with a synthetic clock.
func (l *Loop) Tick(horizon time.Time) Command {
	for _, m := range l.buffer.DrainReady(horizon) {
		l.fuse(m)
	}
	if err := l.filter.PredictTo(horizon); err != nil {
		l.noteAnomaly(AnomalyNumerical, err.Error(), horizon)
	}

	est := l.filter.Current()
	l.record(est)

	twist, status := l.tracker.ComputeCommand(est)

	l.mu.Lock()
	dt := 0.0
	if l.ticked {
		dt = horizon.Sub(l.prevTick).Seconds()
	}
	limited := l.limiter.Limit(twist, l.prevCmd, dt)
	l.prevCmd = limited
	l.prevTick = horizon
	l.ticked = true
	l.lastStatus = status
	l.counters.Ticks++
	// Idle ticks (no path was ever set) produce nothing for actuation.
	publish := status != pursuit.StatusIdle
	if publish {
		l.counters.Commands++
	}
	if est.Ready {
		l.trail = append(l.trail, TrailPoint{
			X: est.Pose.X, Y: est.Pose.Y, Heading: est.Pose.Heading, Stamp: est.Stamp,
		})
		if len(l.trail) > l.trailLength {
			l.trail = l.trail[len(l.trail)-l.trailLength:]
		}
	}
	l.mu.Unlock()

	left, right := l.limiter.WheelSpeeds(limited)
	cmd := Command{
		Twist:      limited,
		WheelLeft:  left,
		WheelRight: right,
		Status:     status,
		Episode:    l.tracker.Episode(),
		Stamp:      horizon,
	}
	if publish {
		l.sink.PublishCommand(cmd)
		if l.recorder != nil {
			if err := l.recorder.RecordCommand(cmd); err != nil {
				monitoring.Logf("pipeline: record command: %v", err)
			}
		}
	}
	return cmd
}

// fuse advances the filter to one measurement's time and applies it,
// translating recoverable failures into counters.
func (l *Loop) fuse(m measure.Measurement) {
	if err := l.filter.PredictTo(m.Stamp()); err != nil {
		l.noteAnomaly(AnomalyNumerical, err.Error(), m.Stamp())
		return
	}
	err := l.filter.Correct(m)
	switch {
	case err == nil:
		l.mu.Lock()
		l.counters.Corrections++
		l.mu.Unlock()
	case errors.Is(err, nav.ErrFrameNotConnected):
		l.noteAnomaly(AnomalyFrameMiss, err.Error(), m.Stamp())
	case errors.Is(err, nav.ErrNumericalFault):
		l.noteAnomaly(AnomalyNumerical, err.Error(), m.Stamp())
	default:
		monitoring.Logf("pipeline: correction rejected: %v", err)
	}
}

func (l *Loop) noteAnomaly(kind, detail string, stamp time.Time) {
	l.mu.Lock()
	switch kind {
	case AnomalyStale:
		l.counters.StaleDropped++
	case AnomalyFrameMiss:
		l.counters.FrameMisses++
	case AnomalyNumerical:
		l.counters.NumericalFaults++
	}
	l.mu.Unlock()

	monitoring.Logf("pipeline: %s: %s", kind, detail)
	if l.recorder != nil {
		if err := l.recorder.RecordAnomaly(kind, detail, stamp); err != nil {
			monitoring.Logf("pipeline: record anomaly: %v", err)
		}
	}
}

func (l *Loop) record(est nav.StateEstimate) {
	if l.recorder == nil || !est.Ready {
		return
	}
	if err := l.recorder.RecordEstimate(est); err != nil {
		monitoring.Logf("pipeline: record estimate: %v", err)
	}
}
