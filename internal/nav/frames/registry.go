package frames

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duckietown/duckietown-intnav/internal/nav"
)

// DefaultEdgeHistory is the per-edge sample retention when none is configured.
// Late corrections older than the oldest retained sample fall back to the
// held-constant boundary value.
const DefaultEdgeHistory = 64

// edgeKey identifies a directed parent->child transform edge.
type edgeKey struct {
	parent string
	child  string
}

// sample is one timestamped transform observation on an edge.
type sample struct {
	stamp time.Time
	pose  nav.Pose2D
}

// snapshot is an immutable view of the registered transform graph.
// Edges hold their samples sorted by timestamp, oldest first.
type snapshot struct {
	edges map[edgeKey][]sample
}

// Registry stores time-varying transforms between named frames and resolves
// transform chains between any two connected frames.
type Registry struct {
	history int
	writeMu sync.Mutex
	snap    atomic.Pointer[snapshot]
}

// NewRegistry creates an empty registry retaining up to history samples per
// edge. A non-positive history selects DefaultEdgeHistory.
func NewRegistry(history int) *Registry {
	if history <= 0 {
		history = DefaultEdgeHistory
	}
	r := &Registry{history: history}
	r.snap.Store(&snapshot{edges: map[edgeKey][]sample{}})
	return r
}

// Update inserts or replaces the transform between t.Parent and t.Child at
// t.Stamp. Transforms may arrive out of timestamp order; samples are kept
// time-sorted so lookups always use the temporally appropriate one.
func (r *Registry) Update(t nav.Transform) error {
	if t.Parent == "" || t.Child == "" {
		return fmt.Errorf("transform needs both frame names, got parent=%q child=%q", t.Parent, t.Child)
	}
	if t.Parent == t.Child {
		return fmt.Errorf("transform parent and child are both %q", t.Parent)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := r.snap.Load()
	key := edgeKey{parent: t.Parent, child: t.Child}

	// Copy-on-write: shallow-copy the edge map, deep-copy only the edge
	// being mutated. Concurrent lookups keep reading the old snapshot.
	edges := make(map[edgeKey][]sample, len(old.edges)+1)
	for k, v := range old.edges {
		edges[k] = v
	}

	prev := old.edges[key]
	next := make([]sample, 0, len(prev)+1)
	next = append(next, prev...)

	idx := sort.Search(len(next), func(i int) bool { return !next[i].stamp.Before(t.Stamp) })
	if idx < len(next) && next[idx].stamp.Equal(t.Stamp) {
		next[idx].pose = t.Pose // replace same-stamp sample
	} else {
		next = append(next, sample{})
		copy(next[idx+1:], next[idx:])
		next[idx] = sample{stamp: t.Stamp, pose: t.Pose}
	}
	if len(next) > r.history {
		next = next[len(next)-r.history:]
	}

	edges[key] = next
	r.snap.Store(&snapshot{edges: edges})
	return nil
}

// Lookup returns the transform mapping child coordinates into the parent
// frame at the given time, composing any chain of registered transforms
// that connects the two frames. Each edge on the chain is interpolated
// between its temporally adjacent samples, or held constant at the nearest
// sample outside its covered range.
//
// Returns nav.ErrFrameNotConnected when no chain links the frames.
func (r *Registry) Lookup(parent, child string, at time.Time) (nav.Pose2D, error) {
	if parent == child {
		return nav.Pose2D{}, nil
	}

	snap := r.snap.Load()

	// Breadth-first search over the frame graph; registered edges are
	// traversable in both directions by inverting the stored pose.
	type hop struct {
		key     edgeKey
		inverse bool
	}
	adj := map[string][]hop{}
	for key := range snap.edges {
		adj[key.parent] = append(adj[key.parent], hop{key: key})
		adj[key.child] = append(adj[key.child], hop{key: key, inverse: true})
	}

	prevHop := map[string]hop{}
	visited := map[string]bool{parent: true}
	queue := []string{parent}
	found := false
	for len(queue) > 0 && !found {
		frame := queue[0]
		queue = queue[1:]
		for _, h := range adj[frame] {
			next := h.key.child
			if h.inverse {
				next = h.key.parent
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			prevHop[next] = h
			if next == child {
				found = true
				break
			}
			queue = append(queue, next)
		}
	}
	if !found {
		return nav.Pose2D{}, fmt.Errorf("no transform chain from %q to %q: %w", parent, child, nav.ErrFrameNotConnected)
	}

	// Walk back from child to parent collecting hops, then compose
	// parent-to-child order.
	var chain []hop
	for frame := child; frame != parent; {
		h := prevHop[frame]
		chain = append(chain, h)
		if h.inverse {
			frame = h.key.child
		} else {
			frame = h.key.parent
		}
	}

	result := nav.Pose2D{}
	for i := len(chain) - 1; i >= 0; i-- {
		h := chain[i]
		pose := sampleAt(snap.edges[h.key], at)
		if h.inverse {
			pose = pose.Invert()
		}
		result = result.Compose(pose)
	}
	return result, nil
}

// sampleAt interpolates an edge's samples at the requested time. Outside the
// covered range the boundary sample is held constant.
func sampleAt(samples []sample, at time.Time) nav.Pose2D {
	n := len(samples)
	switch {
	case n == 0:
		return nav.Pose2D{}
	case n == 1, !at.After(samples[0].stamp):
		return samples[0].pose
	case !at.Before(samples[n-1].stamp):
		return samples[n-1].pose
	}

	hi := sort.Search(n, func(i int) bool { return !samples[i].stamp.Before(at) })
	lo := hi - 1
	a, b := samples[lo], samples[hi]

	span := b.stamp.Sub(a.stamp)
	if span <= 0 {
		return a.pose
	}
	frac := float64(at.Sub(a.stamp)) / float64(span)
	return interpolate(a.pose, b.pose, frac)
}

// interpolate blends two poses: linear in position, shortest-arc in heading.
func interpolate(a, b nav.Pose2D, frac float64) nav.Pose2D {
	dh := nav.NormalizeHeading(b.Heading - a.Heading)
	return nav.Pose2D{
		X:       a.X + (b.X-a.X)*frac,
		Y:       a.Y + (b.Y-a.Y)*frac,
		Heading: nav.NormalizeHeading(a.Heading + dh*frac),
	}
}
