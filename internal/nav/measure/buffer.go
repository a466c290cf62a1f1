package measure

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/duckietown/duckietown-intnav/internal/nav"
)

// DefaultCapacity bounds the number of buffered measurements when no
// capacity is configured. Overflow evicts the oldest entry.
const DefaultCapacity = 256

// BufferStats is a snapshot of the buffer's anomaly counters.
type BufferStats struct {
	Enqueued     int64 `json:"enqueued"`
	Drained      int64 `json:"drained"`
	StaleDropped int64 `json:"stale_dropped"`
	Evicted      int64 `json:"evicted"`
}

// Buffer is the time-ordered intake for heterogeneous sensor measurements.
// Producers enqueue concurrently; a single consumer drains. Measurements
// may arrive slightly out of timestamp order within the reorder window;
// anything older is dropped and counted, never silently lost.
type Buffer struct {
	mu       sync.Mutex
	window   time.Duration
	capacity int

	pending []Measurement // kept sorted by timestamp, oldest first
	// drainCut is the exclusive upper bound of everything already handed
	// to the consumer. A measurement at or before it arrived too late to
	// be fused in order.
	drainCut    time.Time
	hasDrainCut bool

	stats BufferStats
}

// NewBuffer creates a buffer with the given reorder window and capacity.
// A non-positive capacity selects DefaultCapacity. The window must not be
// negative.
func NewBuffer(window time.Duration, capacity int) (*Buffer, error) {
	if window < 0 {
		return nil, fmt.Errorf("reorder window must not be negative, got %v", window)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{window: window, capacity: capacity}, nil
}

// Enqueue accepts a measurement from any producer. Measurements behind the
// already-drained horizon are rejected with nav.ErrMeasurementStale and
// counted; the estimator state is never touched by a dropped measurement.
func (b *Buffer) Enqueue(m Measurement) error {
	if m == nil {
		return fmt.Errorf("nil measurement")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasDrainCut && !m.Stamp().After(b.drainCut) {
		b.stats.StaleDropped++
		return fmt.Errorf("%s at %s behind drain horizon %s: %w",
			m.Kind(), m.Stamp().Format(time.RFC3339Nano), b.drainCut.Format(time.RFC3339Nano), nav.ErrMeasurementStale)
	}

	idx := sort.Search(len(b.pending), func(i int) bool {
		return b.pending[i].Stamp().After(m.Stamp())
	})
	b.pending = append(b.pending, nil)
	copy(b.pending[idx+1:], b.pending[idx:])
	b.pending[idx] = m
	b.stats.Enqueued++

	if len(b.pending) > b.capacity {
		b.pending = b.pending[1:]
		b.stats.Evicted++
	}
	return nil
}

// DrainReady removes and returns, oldest first, every measurement whose
// timestamp is at or before horizon minus the reorder window. The window
// holds back recent measurements so that late arrivals from slower sensor
// pipelines can still be fused in true time order.
func (b *Buffer) DrainReady(horizon time.Time) []Measurement {
	cut := horizon.Add(-b.window)

	b.mu.Lock()
	defer b.mu.Unlock()

	n := sort.Search(len(b.pending), func(i int) bool {
		return b.pending[i].Stamp().After(cut)
	})
	if n == 0 {
		if !b.hasDrainCut || cut.After(b.drainCut) {
			b.drainCut = cut
			b.hasDrainCut = true
		}
		return nil
	}

	out := make([]Measurement, n)
	copy(out, b.pending[:n])
	b.pending = append(b.pending[:0], b.pending[n:]...)
	b.stats.Drained += int64(n)

	if !b.hasDrainCut || cut.After(b.drainCut) {
		b.drainCut = cut
		b.hasDrainCut = true
	}
	return out
}

// Pending returns the number of buffered measurements.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stats returns a snapshot of the anomaly counters.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
