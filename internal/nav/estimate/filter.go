package estimate

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/duckietown/duckietown-intnav/internal/monitoring"
	"github.com/duckietown/duckietown-intnav/internal/nav"
	"github.com/duckietown/duckietown-intnav/internal/nav/frames"
	"github.com/duckietown/duckietown-intnav/internal/nav/measure"
)

// Mode is the estimator lifecycle state.
type Mode string

const (
	ModeUninitialized Mode = "uninitialized" // no absolute fix accepted yet
	ModeTracking      Mode = "tracking"      // producing trustworthy estimates
)

// Config holds the filter's tuning parameters. All noise densities are per
// second of prediction.
type Config struct {
	WorldFrame string // frame the estimated pose is expressed in
	BodyFrame  string // robot body frame

	ProcessNoisePos     float64 // position process noise density (m^2/s)
	ProcessNoiseHeading float64 // heading process noise density (rad^2/s)
	ProcessNoiseLinear  float64 // linear velocity process noise density ((m/s)^2/s)
	ProcessNoiseAngular float64 // angular velocity process noise density ((rad/s)^2/s)

	// MaxCovarianceDiag caps covariance diagonal growth so long coasting
	// never produces an unbounded gating region downstream.
	MaxCovarianceDiag float64

	// UninitializedCovariance is the pose covariance pinned onto estimates
	// while no absolute fix has been accepted.
	UninitializedCovariance float64

	// InitFixCount is how many absolute fixes are averaged before the
	// filter transitions to Tracking. The sample variance of the fixes
	// seeds the pose covariance, floored at InitVarianceFloor.
	InitFixCount      int
	InitVarianceFloor float64
}

func (c Config) validate() error {
	if c.WorldFrame == "" || c.BodyFrame == "" {
		return fmt.Errorf("estimator needs world and body frame names")
	}
	for name, v := range map[string]float64{
		"process_noise_pos":        c.ProcessNoisePos,
		"process_noise_heading":    c.ProcessNoiseHeading,
		"process_noise_linear":     c.ProcessNoiseLinear,
		"process_noise_angular":    c.ProcessNoiseAngular,
		"max_covariance_diag":      c.MaxCovarianceDiag,
		"uninitialized_covariance": c.UninitializedCovariance,
		"init_variance_floor":      c.InitVarianceFloor,
	} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("estimator config %s must be positive, got %g", name, v)
		}
	}
	if c.InitFixCount < 1 {
		return fmt.Errorf("estimator init_fix_count must be at least 1, got %d", c.InitFixCount)
	}
	return nil
}

// Filter is the prediction/correction state estimator. All methods are safe
// for concurrent use; fusion itself is expected to be driven sequentially
// by a single pipeline loop.
type Filter struct {
	mu  sync.Mutex
	cfg Config
	fc  measure.FrameContext

	mode  Mode
	x     *mat.VecDense // [x, y, heading, v, omega]
	p     *mat.Dense    // 5x5 covariance, kept symmetric
	stamp time.Time
	fresh bool // stamp not yet set

	initFixes []nav.Pose2D
}

// NewFilter creates an Uninitialized filter resolving measurement frames
// through the given registry. Configuration violations are fatal here,
// before any measurement is processed.
func NewFilter(cfg Config, reg *frames.Registry) (*Filter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, fmt.Errorf("estimator needs a frame registry")
	}
	f := &Filter{
		cfg: cfg,
		fc: measure.FrameContext{
			Registry:   reg,
			WorldFrame: cfg.WorldFrame,
			BodyFrame:  cfg.BodyFrame,
		},
	}
	f.reset()
	return f, nil
}

// reset reinitializes the state under the caller's lock (or before sharing).
func (f *Filter) reset() {
	f.mode = ModeUninitialized
	f.x = mat.NewVecDense(nav.StateDim, nil)
	f.p = mat.NewDense(nav.StateDim, nav.StateDim, nil)
	for i := 0; i < nav.StateDim; i++ {
		f.p.Set(i, i, f.cfg.UninitializedCovariance)
	}
	f.stamp = time.Time{}
	f.fresh = true
	f.initFixes = nil
}

// Reset forces the filter back to Uninitialized. This is the only path
// that regresses the lifecycle.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
	monitoring.Logf("estimate: filter reset to %s", f.mode)
}

// Mode returns the current lifecycle state.
func (f *Filter) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// PredictTo propagates the state to the given time. Times at or before the
// current state timestamp are a no-op, keeping the estimate timestamp
// monotonically non-decreasing.
func (f *Filter) PredictTo(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fresh {
		f.stamp = t
		f.fresh = false
		return nil
	}
	dt := t.Sub(f.stamp).Seconds()
	if dt <= 0 {
		return nil
	}
	return f.predictLocked(dt, t)
}

// Predict propagates the state by dt seconds. A zero dt leaves the estimate
// unchanged; a negative dt is rejected.
func (f *Filter) Predict(dt float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if dt < 0 {
		return fmt.Errorf("predict dt must not be negative, got %g", dt)
	}
	if dt == 0 {
		return nil
	}
	return f.predictLocked(dt, f.stamp.Add(time.Duration(dt*float64(time.Second))))
}

func (f *Filter) predictLocked(dt float64, stamp time.Time) error {
	x := f.x.AtVec(nav.StateX)
	y := f.x.AtVec(nav.StateY)
	th := f.x.AtVec(nav.StateHeading)
	v := f.x.AtVec(nav.StateLinear)
	w := f.x.AtVec(nav.StateAngular)

	sin, cos := math.Sincos(th)

	// Unicycle kinematics, explicit Euler step. Committed only after the
	// covariance propagation checks out finite.
	nx := x + v*cos*dt
	ny := y + v*sin*dt
	nth := nav.NormalizeHeading(th + w*dt)

	// Jacobian of the motion model.
	F := mat.NewDense(nav.StateDim, nav.StateDim, nil)
	for i := 0; i < nav.StateDim; i++ {
		F.Set(i, i, 1)
	}
	F.Set(nav.StateX, nav.StateHeading, -v*sin*dt)
	F.Set(nav.StateX, nav.StateLinear, cos*dt)
	F.Set(nav.StateY, nav.StateHeading, v*cos*dt)
	F.Set(nav.StateY, nav.StateLinear, sin*dt)
	F.Set(nav.StateHeading, nav.StateAngular, dt)

	// P = F P F^T + Q*dt
	var fp, fpf mat.Dense
	fp.Mul(F, f.p)
	fpf.Mul(&fp, F.T())
	fpf.Set(nav.StateX, nav.StateX, fpf.At(nav.StateX, nav.StateX)+f.cfg.ProcessNoisePos*dt)
	fpf.Set(nav.StateY, nav.StateY, fpf.At(nav.StateY, nav.StateY)+f.cfg.ProcessNoisePos*dt)
	fpf.Set(nav.StateHeading, nav.StateHeading, fpf.At(nav.StateHeading, nav.StateHeading)+f.cfg.ProcessNoiseHeading*dt)
	fpf.Set(nav.StateLinear, nav.StateLinear, fpf.At(nav.StateLinear, nav.StateLinear)+f.cfg.ProcessNoiseLinear*dt)
	fpf.Set(nav.StateAngular, nav.StateAngular, fpf.At(nav.StateAngular, nav.StateAngular)+f.cfg.ProcessNoiseAngular*dt)

	capDiagonal(&fpf, f.cfg.MaxCovarianceDiag)
	symmetrize(&fpf)

	if math.IsNaN(nx+ny+nth) || math.IsInf(nx+ny+nth, 0) || !finiteState(f.x, &fpf) {
		return fmt.Errorf("prediction produced non-finite state: %w", nav.ErrNumericalFault)
	}
	f.x.SetVec(nav.StateX, nx)
	f.x.SetVec(nav.StateY, ny)
	f.x.SetVec(nav.StateHeading, nth)
	f.p.CloneFrom(&fpf)
	if stamp.After(f.stamp) {
		f.stamp = stamp
	}
	return nil
}

// Correct fuses one measurement. Frame resolution failures and corrections
// that would break covariance validity are reported and skipped without
// corrupting the state.
func (f *Filter) Correct(m measure.Measurement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pd, ok := m.(measure.PoseDetection); ok && f.mode == ModeUninitialized {
		return f.accumulateInitFix(pd)
	}

	pose := f.poseLocked()
	twist := f.twistLocked()
	obs, err := m.Observe(pose, twist, f.fc)
	if err != nil {
		return fmt.Errorf("correct %s: %w", m.Kind(), err)
	}
	if err := f.applyLocked(obs); err != nil {
		return fmt.Errorf("correct %s: %w", m.Kind(), err)
	}
	if f.mode == ModeUninitialized {
		// No absolute fix yet: whatever the measurement claimed, the pose
		// stays untrusted.
		f.pinUninitializedPose()
	}
	if stamp := m.Stamp(); stamp.After(f.stamp) {
		f.stamp = stamp
		f.fresh = false
	}
	return nil
}

// accumulateInitFix collects absolute fixes while Uninitialized and
// transitions to Tracking once enough have been averaged.
func (f *Filter) accumulateInitFix(pd measure.PoseDetection) error {
	z, err := pd.Resolve(f.fc)
	if err != nil {
		return fmt.Errorf("init fix: %w", err)
	}
	f.initFixes = append(f.initFixes, z)
	if stamp := pd.Stamp(); stamp.After(f.stamp) {
		f.stamp = stamp
		f.fresh = false
	}
	if len(f.initFixes) < f.cfg.InitFixCount {
		return nil
	}

	mean, variance := poseStatistics(f.initFixes)
	f.x.SetVec(nav.StateX, mean.X)
	f.x.SetVec(nav.StateY, mean.Y)
	f.x.SetVec(nav.StateHeading, mean.Heading)

	f.p.Zero()
	f.p.Set(nav.StateX, nav.StateX, math.Max(variance.X, f.cfg.InitVarianceFloor))
	f.p.Set(nav.StateY, nav.StateY, math.Max(variance.Y, f.cfg.InitVarianceFloor))
	f.p.Set(nav.StateHeading, nav.StateHeading, math.Max(variance.Heading, f.cfg.InitVarianceFloor))
	f.p.Set(nav.StateLinear, nav.StateLinear, f.cfg.InitVarianceFloor)
	f.p.Set(nav.StateAngular, nav.StateAngular, f.cfg.InitVarianceFloor)

	f.mode = ModeTracking
	f.initFixes = nil
	monitoring.Logf("estimate: tracking from fix (%.3f, %.3f, %.3f)", mean.X, mean.Y, mean.Heading)
	return nil
}

// applyLocked runs the information-weighted EKF update for one observation.
func (f *Filter) applyLocked(obs measure.Observation) error {
	k := len(obs.Residual)
	if k == 0 {
		return nil
	}

	H := mat.NewDense(k, nav.StateDim, nil)
	for i, row := range obs.Jacobian {
		H.SetRow(i, row)
	}
	R := mat.NewDense(k, k, nil)
	for i, row := range obs.Noise {
		R.SetRow(i, row)
	}
	y := mat.NewVecDense(k, obs.Residual)

	// S = H P H^T + R
	var ph, s mat.Dense
	ph.Mul(f.p, H.T())
	s.Mul(H, &ph)
	s.Add(&s, R)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("innovation covariance singular: %w", nav.ErrNumericalFault)
	}

	// K = P H^T S^-1
	var K mat.Dense
	K.Mul(&ph, &sInv)

	var dx mat.VecDense
	dx.MulVec(&K, y)

	// P' = (I - K H) P
	var kh mat.Dense
	kh.Mul(&K, H)
	ikh := mat.NewDense(nav.StateDim, nav.StateDim, nil)
	for i := 0; i < nav.StateDim; i++ {
		ikh.Set(i, i, 1)
	}
	ikh.Sub(ikh, &kh)
	var pNew mat.Dense
	pNew.Mul(ikh, f.p)
	symmetrize(&pNew)

	// Reject the whole correction rather than store an invalid covariance.
	for i := 0; i < nav.StateDim; i++ {
		d := pNew.At(i, i)
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("covariance diagonal %d became %g: %w", i, d, nav.ErrNumericalFault)
		}
	}
	var xNew mat.VecDense
	xNew.AddVec(f.x, &dx)
	if !finiteState(&xNew, &pNew) {
		return fmt.Errorf("state update non-finite: %w", nav.ErrNumericalFault)
	}

	xNew.SetVec(nav.StateHeading, nav.NormalizeHeading(xNew.AtVec(nav.StateHeading)))
	f.x.CloneFromVec(&xNew)
	f.p.CloneFrom(&pNew)
	return nil
}

// pinUninitializedPose forces the pose covariance large while no absolute
// fix has been accepted.
func (f *Filter) pinUninitializedPose() {
	for _, i := range []int{nav.StateX, nav.StateY, nav.StateHeading} {
		f.p.Set(i, i, f.cfg.UninitializedCovariance)
	}
}

// Current returns the rolling state estimate.
func (f *Filter) Current() nav.StateEstimate {
	f.mu.Lock()
	defer f.mu.Unlock()

	est := nav.StateEstimate{
		Frame: f.cfg.WorldFrame,
		Pose:  f.poseLocked(),
		Twist: f.twistLocked(),
		Stamp: f.stamp,
		Ready: f.mode == ModeTracking,
	}
	for i := 0; i < nav.StateDim; i++ {
		for j := 0; j < nav.StateDim; j++ {
			est.Covariance[i*nav.StateDim+j] = f.p.At(i, j)
		}
	}
	return est
}

func (f *Filter) poseLocked() nav.Pose2D {
	return nav.Pose2D{
		X:       f.x.AtVec(nav.StateX),
		Y:       f.x.AtVec(nav.StateY),
		Heading: f.x.AtVec(nav.StateHeading),
	}
}

func (f *Filter) twistLocked() nav.Twist {
	return nav.Twist{
		Linear:  f.x.AtVec(nav.StateLinear),
		Angular: f.x.AtVec(nav.StateAngular),
	}
}

// poseStatistics returns the componentwise mean and sample variance of a
// set of poses. Heading statistics use the circular mean.
func poseStatistics(fixes []nav.Pose2D) (mean, variance nav.Pose2D) {
	n := float64(len(fixes))
	var sx, sy, sinSum, cosSum float64
	for _, p := range fixes {
		sx += p.X
		sy += p.Y
		sinSum += math.Sin(p.Heading)
		cosSum += math.Cos(p.Heading)
	}
	mean = nav.Pose2D{
		X:       sx / n,
		Y:       sy / n,
		Heading: math.Atan2(sinSum, cosSum),
	}
	for _, p := range fixes {
		dx := p.X - mean.X
		dy := p.Y - mean.Y
		dh := nav.NormalizeHeading(p.Heading - mean.Heading)
		variance.X += dx * dx
		variance.Y += dy * dy
		variance.Heading += dh * dh
	}
	variance.X /= n
	variance.Y /= n
	variance.Heading /= n
	return mean, variance
}

func capDiagonal(p *mat.Dense, limit float64) {
	for i := 0; i < nav.StateDim; i++ {
		if p.At(i, i) > limit {
			p.Set(i, i, limit)
		}
	}
}

func symmetrize(p *mat.Dense) {
	for i := 0; i < nav.StateDim; i++ {
		for j := i + 1; j < nav.StateDim; j++ {
			avg := (p.At(i, j) + p.At(j, i)) / 2
			p.Set(i, j, avg)
			p.Set(j, i, avg)
		}
	}
}

func finiteState(x *mat.VecDense, p *mat.Dense) bool {
	for i := 0; i < nav.StateDim; i++ {
		if math.IsNaN(x.AtVec(i)) || math.IsInf(x.AtVec(i), 0) {
			return false
		}
		for j := 0; j < nav.StateDim; j++ {
			if math.IsNaN(p.At(i, j)) || math.IsInf(p.At(i, j), 0) {
				return false
			}
		}
	}
	return true
}
