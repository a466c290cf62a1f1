package pursuit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckietown/duckietown-intnav/internal/nav"
)

func testConfig() Config {
	return Config{
		LookaheadDistance: 0.5,
		CruiseSpeed:       0.2,
		GoalTolerance:     0.1,
		ConfidenceLimit:   1.0,
	}
}

func straightPath() nav.PathReference {
	wps := make([]nav.Waypoint, 0, 11)
	for i := 0; i <= 10; i++ {
		wps = append(wps, nav.Waypoint{X: float64(i), Y: 0})
	}
	return nav.PathReference{Frame: "map", Waypoints: wps}
}

func readyEstimate(pose nav.Pose2D) nav.StateEstimate {
	est := nav.StateEstimate{
		Frame: "map",
		Pose:  pose,
		Stamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Ready: true,
	}
	for i := 0; i < nav.StateDim; i++ {
		est.Covariance[i*nav.StateDim+i] = 0.01
	}
	return est
}

func TestNewTrackerValidatesConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.LookaheadDistance = 0
	_, err := NewTracker(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.CruiseSpeed = math.NaN()
	_, err = NewTracker(cfg)
	assert.Error(t, err)
}

func TestStraightPathDrivesStraight(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(testConfig())
	require.NoError(t, err)
	tr.SetPath(straightPath())

	cmd, status := tr.ComputeCommand(readyEstimate(nav.Pose2D{X: 0, Y: 0, Heading: 0}))
	assert.Equal(t, StatusTracking, status)
	assert.InDelta(t, 0.2, cmd.Linear, 1e-9, "cruise speed with no waypoint hint")
	assert.InDelta(t, 0.0, cmd.Angular, 1e-9)
}

func TestArrivalReturnsComplete(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(testConfig())
	require.NoError(t, err)
	tr.SetPath(straightPath())

	cmd, status := tr.ComputeCommand(readyEstimate(nav.Pose2D{X: 10, Y: 0, Heading: 0}))
	assert.Equal(t, StatusComplete, status)
	assert.True(t, cmd.IsZero())

	// The episode is over; subsequent queries stay terminal.
	cmd, status = tr.ComputeCommand(readyEstimate(nav.Pose2D{X: 10, Y: 0}))
	assert.Equal(t, StatusComplete, status)
	assert.True(t, cmd.IsZero())
	assert.Empty(t, tr.Episode())
}

func TestNotReadyRefusesCommand(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(testConfig())
	require.NoError(t, err)
	tr.SetPath(straightPath())

	t.Run("uninitialized estimate", func(t *testing.T) {
		est := readyEstimate(nav.Pose2D{})
		est.Ready = false
		cmd, status := tr.ComputeCommand(est)
		assert.Equal(t, StatusNotReady, status)
		assert.True(t, cmd.IsZero())
	})

	t.Run("covariance above confidence limit", func(t *testing.T) {
		est := readyEstimate(nav.Pose2D{})
		est.Covariance[nav.StateX*nav.StateDim+nav.StateX] = 50
		cmd, status := tr.ComputeCommand(est)
		assert.Equal(t, StatusNotReady, status)
		assert.True(t, cmd.IsZero())
	})
}

func TestSteersTowardOffsetPath(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(testConfig())
	require.NoError(t, err)
	tr.SetPath(straightPath())

	// Robot below the path: it must turn left (positive angular).
	cmd, status := tr.ComputeCommand(readyEstimate(nav.Pose2D{X: 0, Y: -0.5, Heading: 0}))
	assert.Equal(t, StatusTracking, status)
	assert.Positive(t, cmd.Angular)

	// Robot above the path: turn right.
	cmd, status = tr.ComputeCommand(readyEstimate(nav.Pose2D{X: 0, Y: 0.5, Heading: 0}))
	assert.Equal(t, StatusTracking, status)
	assert.Negative(t, cmd.Angular)
}

func TestWaypointSpeedHint(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(testConfig())
	require.NoError(t, err)

	hint := 0.35
	path := straightPath()
	for i := range path.Waypoints {
		path.Waypoints[i].Speed = &hint
	}
	tr.SetPath(path)

	cmd, status := tr.ComputeCommand(readyEstimate(nav.Pose2D{}))
	assert.Equal(t, StatusTracking, status)
	assert.InDelta(t, hint, cmd.Linear, 1e-9)
}

func TestEmptyPathAbortsEpisode(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(testConfig())
	require.NoError(t, err)
	tr.SetPath(straightPath())
	require.NotEmpty(t, tr.Episode())

	tr.SetPath(nav.PathReference{})
	assert.Empty(t, tr.Episode())

	cmd, status := tr.ComputeCommand(readyEstimate(nav.Pose2D{X: 5}))
	assert.Equal(t, StatusAborted, status)
	assert.True(t, cmd.IsZero())
}

func TestSetPathReplacesEpisode(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(testConfig())
	require.NoError(t, err)

	tr.SetPath(straightPath())
	first := tr.Episode()
	tr.SetPath(straightPath())
	second := tr.Episode()
	assert.NotEqual(t, first, second, "each path gets a fresh episode")
}

func TestNoPathIsIdle(t *testing.T) {
	t.Parallel()

	tr, err := NewTracker(testConfig())
	require.NoError(t, err)

	cmd, status := tr.ComputeCommand(readyEstimate(nav.Pose2D{}))
	assert.Equal(t, StatusIdle, status)
	assert.True(t, cmd.IsZero())
}

func TestShortPathFallsBackToFinalWaypoint(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.LookaheadDistance = 5 // longer than the whole path
	tr, err := NewTracker(cfg)
	require.NoError(t, err)
	tr.SetPath(nav.PathReference{
		Frame:     "map",
		Waypoints: []nav.Waypoint{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}},
	})

	cmd, status := tr.ComputeCommand(readyEstimate(nav.Pose2D{X: 0.5, Y: 0, Heading: 0}))
	assert.Equal(t, StatusTracking, status)
	assert.Positive(t, cmd.Linear)
	assert.InDelta(t, 0, cmd.Angular, 1e-9, "final waypoint is dead ahead")
}
