package measure

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckietown/duckietown-intnav/internal/nav"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func wheelAt(stamp time.Time) WheelDelta {
	return WheelDelta{
		Time:       stamp,
		Frame:      "base",
		Left:       0.01,
		Right:      0.01,
		Interval:   20 * time.Millisecond,
		Separation: 0.1,
		VarLinear:  0.01,
		VarAngular: 0.01,
	}
}

func TestBufferDrainsInTimeOrder(t *testing.T) {
	t.Parallel()

	b, err := NewBuffer(50*time.Millisecond, 0)
	require.NoError(t, err)

	// Enqueue out of order within the window.
	require.NoError(t, b.Enqueue(wheelAt(base.Add(30*time.Millisecond))))
	require.NoError(t, b.Enqueue(wheelAt(base.Add(10*time.Millisecond))))
	require.NoError(t, b.Enqueue(wheelAt(base.Add(20*time.Millisecond))))

	got := b.DrainReady(base.Add(100 * time.Millisecond))
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Stamp().Before(got[i-1].Stamp()), "measurements out of order at %d", i)
	}
}

func TestBufferHoldsBackWindow(t *testing.T) {
	t.Parallel()

	b, err := NewBuffer(50*time.Millisecond, 0)
	require.NoError(t, err)

	require.NoError(t, b.Enqueue(wheelAt(base.Add(10*time.Millisecond))))
	require.NoError(t, b.Enqueue(wheelAt(base.Add(80*time.Millisecond))))

	// Horizon 100ms, window 50ms: only the 10ms measurement is ready.
	got := b.DrainReady(base.Add(100 * time.Millisecond))
	require.Len(t, got, 1)
	assert.Equal(t, base.Add(10*time.Millisecond), got[0].Stamp())
	assert.Equal(t, 1, b.Pending())
}

func TestBufferDropsStale(t *testing.T) {
	t.Parallel()

	b, err := NewBuffer(50*time.Millisecond, 0)
	require.NoError(t, err)

	require.NoError(t, b.Enqueue(wheelAt(base.Add(10*time.Millisecond))))
	_ = b.DrainReady(base.Add(200 * time.Millisecond))

	// Behind the drained horizon: dropped, counted exactly once.
	err = b.Enqueue(wheelAt(base.Add(20 * time.Millisecond)))
	require.ErrorIs(t, err, nav.ErrMeasurementStale)

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.StaleDropped)
	assert.Equal(t, 0, b.Pending(), "stale measurement must not be buffered")

	// A second stale arrival increments again.
	require.ErrorIs(t, b.Enqueue(wheelAt(base.Add(30*time.Millisecond))), nav.ErrMeasurementStale)
	assert.Equal(t, int64(2), b.Stats().StaleDropped)
}

func TestBufferStaleEvenWhenEmptyDrain(t *testing.T) {
	t.Parallel()

	b, err := NewBuffer(50*time.Millisecond, 0)
	require.NoError(t, err)

	// Draining an empty buffer still advances the horizon.
	got := b.DrainReady(base.Add(time.Second))
	assert.Empty(t, got)

	err = b.Enqueue(wheelAt(base))
	require.ErrorIs(t, err, nav.ErrMeasurementStale)
}

func TestBufferCapacityEvictsOldest(t *testing.T) {
	t.Parallel()

	b, err := NewBuffer(0, 3)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Enqueue(wheelAt(base.Add(time.Duration(i)*time.Millisecond))))
	}

	assert.Equal(t, 3, b.Pending())
	assert.Equal(t, int64(2), b.Stats().Evicted)

	got := b.DrainReady(base.Add(time.Second))
	require.Len(t, got, 3)
	assert.Equal(t, base.Add(2*time.Millisecond), got[0].Stamp())
}

func TestBufferRejectsNil(t *testing.T) {
	t.Parallel()

	b, err := NewBuffer(0, 0)
	require.NoError(t, err)
	assert.Error(t, b.Enqueue(nil))
}

func TestBufferRejectsNegativeWindow(t *testing.T) {
	t.Parallel()

	_, err := NewBuffer(-time.Second, 0)
	assert.Error(t, err)
}

func TestBufferConcurrentEnqueue(t *testing.T) {
	t.Parallel()

	b, err := NewBuffer(0, 4096)
	require.NoError(t, err)

	const producers = 8
	const perProducer = 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				stamp := base.Add(time.Duration(p*perProducer+i) * time.Microsecond)
				_ = b.Enqueue(wheelAt(stamp))
			}
		}(p)
	}
	wg.Wait()

	got := b.DrainReady(base.Add(time.Second))
	require.Len(t, got, producers*perProducer)
	for i := 1; i < len(got); i++ {
		require.False(t, got[i].Stamp().Before(got[i-1].Stamp()), "out of order at %d", i)
	}
}
