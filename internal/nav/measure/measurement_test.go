package measure

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckietown/duckietown-intnav/internal/nav"
	"github.com/duckietown/duckietown-intnav/internal/nav/frames"
)

func testFrameContext(t *testing.T) FrameContext {
	t.Helper()
	reg := frames.NewRegistry(0)
	require.NoError(t, reg.Update(nav.Transform{
		Parent: "base", Child: "imu",
		Pose:  nav.Pose2D{X: 0.02, Y: 0, Heading: math.Pi / 2},
		Stamp: base,
	}))
	require.NoError(t, reg.Update(nav.Transform{
		Parent: "map", Child: "tag_7",
		Pose:  nav.Pose2D{X: 2, Y: 1, Heading: math.Pi},
		Stamp: base,
	}))
	return FrameContext{Registry: reg, WorldFrame: "map", BodyFrame: "base"}
}

func TestWheelDeltaObserve(t *testing.T) {
	t.Parallel()

	fc := testFrameContext(t)
	m := WheelDelta{
		Time:       base,
		Frame:      "base",
		Left:       0.09,
		Right:      0.11,
		Interval:   time.Second,
		Separation: 0.1,
		VarLinear:  0.01,
		VarAngular: 0.02,
	}

	obs, err := m.Observe(nav.Pose2D{}, nav.Twist{Linear: 0.05, Angular: 0}, fc)
	require.NoError(t, err)
	require.Len(t, obs.Residual, 2)
	assert.InDelta(t, 0.1-0.05, obs.Residual[0], 1e-9) // v = (l+r)/2dt
	assert.InDelta(t, 0.2, obs.Residual[1], 1e-9)      // w = (r-l)/(b*dt)
	assert.Equal(t, []float64{0, 0, 0, 1, 0}, obs.Jacobian[0])
	assert.Equal(t, []float64{0, 0, 0, 0, 1}, obs.Jacobian[1])
	assert.InDelta(t, 0.01, obs.Noise[0][0], 1e-12)
	assert.InDelta(t, 0.02, obs.Noise[1][1], 1e-12)
}

func TestWheelDeltaValidation(t *testing.T) {
	t.Parallel()

	fc := testFrameContext(t)

	t.Run("zero interval", func(t *testing.T) {
		m := WheelDelta{Time: base, Interval: 0, Separation: 0.1}
		_, err := m.Observe(nav.Pose2D{}, nav.Twist{}, fc)
		assert.Error(t, err)
	})

	t.Run("zero separation", func(t *testing.T) {
		m := WheelDelta{Time: base, Interval: time.Second}
		_, err := m.Observe(nav.Pose2D{}, nav.Twist{}, fc)
		assert.Error(t, err)
	})

	t.Run("unknown frame", func(t *testing.T) {
		m := WheelDelta{Time: base, Frame: "ghost", Interval: time.Second, Separation: 0.1}
		_, err := m.Observe(nav.Pose2D{}, nav.Twist{}, fc)
		assert.ErrorIs(t, err, nav.ErrFrameNotConnected)
	})
}

func TestInertialSampleObserve(t *testing.T) {
	t.Parallel()

	fc := testFrameContext(t)

	t.Run("yaw rate only", func(t *testing.T) {
		m := InertialSample{Time: base, Frame: "base", YawRate: 0.4, VarYawRate: 0.05}
		obs, err := m.Observe(nav.Pose2D{}, nav.Twist{Angular: 0.1}, fc)
		require.NoError(t, err)
		require.Len(t, obs.Residual, 1)
		assert.InDelta(t, 0.3, obs.Residual[0], 1e-9)
		assert.Equal(t, []float64{0, 0, 0, 0, 1}, obs.Jacobian[0])
	})

	t.Run("heading corrected for mount yaw", func(t *testing.T) {
		// The imu frame is mounted rotated pi/2 from the body; a sensor
		// heading of pi/2 means the body faces zero.
		heading := math.Pi / 2
		m := InertialSample{
			Time: base, Frame: "imu",
			YawRate: 0, Heading: &heading,
			VarYawRate: 0.05, VarHeading: 0.1,
		}
		obs, err := m.Observe(nav.Pose2D{Heading: 0.2}, nav.Twist{}, fc)
		require.NoError(t, err)
		require.Len(t, obs.Residual, 2)
		assert.InDelta(t, -0.2, obs.Residual[1], 1e-9)
		assert.InDelta(t, 0.1, obs.Noise[1][1], 1e-12)
	})

	t.Run("unknown frame", func(t *testing.T) {
		m := InertialSample{Time: base, Frame: "ghost", YawRate: 0.4}
		_, err := m.Observe(nav.Pose2D{}, nav.Twist{}, fc)
		assert.ErrorIs(t, err, nav.ErrFrameNotConnected)
	})
}

func TestPoseDetectionResolve(t *testing.T) {
	t.Parallel()

	fc := testFrameContext(t)

	t.Run("anchored to landmark", func(t *testing.T) {
		// Body sits 1 m in front of tag_7, which is at (2,1) facing pi.
		m := PoseDetection{
			Time: base, Frame: "tag_7",
			Pose: nav.Pose2D{X: 1, Y: 0, Heading: 0},
		}
		z, err := m.Resolve(fc)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, z.X, 1e-9)
		assert.InDelta(t, 1.0, z.Y, 1e-9)
		assert.InDelta(t, math.Pi, math.Abs(z.Heading), 1e-9)
	})

	t.Run("already in world frame", func(t *testing.T) {
		m := PoseDetection{Time: base, Frame: "map", Pose: nav.Pose2D{X: 4, Y: 5}}
		z, err := m.Resolve(fc)
		require.NoError(t, err)
		assert.Equal(t, 4.0, z.X)
	})

	t.Run("unknown anchor", func(t *testing.T) {
		m := PoseDetection{Time: base, Frame: "tag_99"}
		_, err := m.Resolve(fc)
		assert.ErrorIs(t, err, nav.ErrFrameNotConnected)
	})
}

func TestPoseDetectionObserveWrapsHeading(t *testing.T) {
	t.Parallel()

	fc := testFrameContext(t)
	m := PoseDetection{
		Time: base, Frame: "map",
		Pose:       nav.Pose2D{X: 0, Y: 0, Heading: math.Pi - 0.05},
		VarX:       0.01, VarY: 0.01, VarHeading: 0.02,
	}

	obs, err := m.Observe(nav.Pose2D{Heading: -math.Pi + 0.05}, nav.Twist{}, fc)
	require.NoError(t, err)
	require.Len(t, obs.Residual, 3)
	// Residual takes the short way around the circle.
	assert.InDelta(t, -0.1, obs.Residual[2], 1e-9)
}
