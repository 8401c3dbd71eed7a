package analysis

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Percentile bounds used for robust normalization.
const (
	LowerPercentile = 5.0
	UpperPercentile = 95.0
	// DegenerateValue is the normalized value used when a distribution carries no information.
	DegenerateValue = 0.5
)

// Bounds are the robust lower and upper bounds of one metric's distribution.
type Bounds struct {
	P5  float64 `json:"p5"`
	P95 float64 `json:"p95"`
}

// Degenerate reports whether the bounds collapse to a single point.
func (b Bounds) Degenerate() bool {
	return b.P95 == b.P5
}

// Normalize rescales value into [0,1] against the bounds.
// A degenerate distribution always yields exactly 0.5.
func (b Bounds) Normalize(value float64) float64 {
	if b.Degenerate() {
		return DegenerateValue
	}
	return clamp((value-b.P5)/(b.P95-b.P5), 0, 1)
}

// Percentile returns the q-th percentile (0-100) of values using linear interpolation
// between closest ranks. Non-finite values are ignored. ok is false for an empty sample.
func Percentile(values []float64, q float64) (float64, bool) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return 0, false
	}
	sort.Float64s(sorted)
	return percentileSorted(sorted, q), true
}

func percentileSorted(sorted []float64, q float64) float64 {
	rank := clamp(q, 0, 100) / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// ComputeBounds returns the 5th/95th percentile bounds of a sample.
func ComputeBounds(values []float64) (Bounds, bool) {
	p5, ok := Percentile(values, LowerPercentile)
	if !ok {
		return Bounds{}, false
	}
	p95, _ := Percentile(values, UpperPercentile)
	return Bounds{P5: p5, P95: p95}, true
}

// ReferenceSnapshot is an immutable set of per-metric bounds computed from one dataset version.
type ReferenceSnapshot struct {
	builtAt time.Time
	bounds  map[string]Bounds
	counts  map[string]int
	version string
}

// NewReferenceSnapshot computes bounds for every metric sample set.
func NewReferenceSnapshot(version string, samples map[string][]float64, builtAt time.Time) *ReferenceSnapshot {
	snap := &ReferenceSnapshot{
		builtAt: builtAt,
		bounds:  make(map[string]Bounds, len(samples)),
		counts:  make(map[string]int, len(samples)),
		version: version,
	}
	for name, values := range samples {
		if b, ok := ComputeBounds(values); ok {
			snap.bounds[name] = b
			snap.counts[name] = len(values)
		}
	}
	return snap
}

// NewReferenceSnapshotFromBounds builds a snapshot from precomputed bounds.
func NewReferenceSnapshotFromBounds(version string, bounds map[string]Bounds) *ReferenceSnapshot {
	snap := &ReferenceSnapshot{
		builtAt: time.Now().UTC(),
		bounds:  make(map[string]Bounds, len(bounds)),
		counts:  make(map[string]int, len(bounds)),
		version: version,
	}
	for name, b := range bounds {
		snap.bounds[name] = b
	}
	return snap
}

// Version identifies the dataset the snapshot was built from.
func (r *ReferenceSnapshot) Version() string {
	return r.version
}

// BuiltAt is when the snapshot was computed.
func (r *ReferenceSnapshot) BuiltAt() time.Time {
	return r.builtAt
}

// Bounds returns the bounds for a metric.
func (r *ReferenceSnapshot) Bounds(name string) (Bounds, bool) {
	b, ok := r.bounds[name]
	return b, ok
}

// Normalize rescales value for metric name. Metrics without reference samples are
// treated as degenerate.
func (r *ReferenceSnapshot) Normalize(name string, value float64) float64 {
	b, ok := r.bounds[name]
	if !ok {
		return DegenerateValue
	}
	return b.Normalize(value)
}

// AllBounds returns a copy of every metric's bounds.
func (r *ReferenceSnapshot) AllBounds() map[string]Bounds {
	out := make(map[string]Bounds, len(r.bounds))
	for k, v := range r.bounds {
		out[k] = v
	}
	return out
}

// SampleCount returns how many samples backed a metric's bounds.
func (r *ReferenceSnapshot) SampleCount(name string) int {
	return r.counts[name]
}

// BoundsCache holds the current reference snapshot. Readers never block and always see a
// complete snapshot; a rebuild publishes a new snapshot with a single atomic swap.
type BoundsCache struct {
	current atomic.Pointer[ReferenceSnapshot]
	stale   atomic.Bool
	rebuild sync.Mutex
}

// NewBoundsCache returns an empty cache.
func NewBoundsCache() *BoundsCache {
	return &BoundsCache{}
}

// Current returns the published snapshot, or nil if none has been built.
func (c *BoundsCache) Current() *ReferenceSnapshot {
	return c.current.Load()
}

// Refresh rebuilds the snapshot when version differs from the published one.
// Concurrent refreshes are serialised; readers keep using the previous snapshot meanwhile.
// rebuilt reports whether build ran.
func (c *BoundsCache) Refresh(version string, build func() (*ReferenceSnapshot, error)) (snap *ReferenceSnapshot, rebuilt bool, err error) {
	if cur := c.current.Load(); cur != nil && cur.version == version && !c.stale.Load() {
		return cur, false, nil
	}

	c.rebuild.Lock()
	defer c.rebuild.Unlock()

	if cur := c.current.Load(); cur != nil && cur.version == version && !c.stale.Load() {
		return cur, false, nil
	}

	// Cleared before building so an Invalidate during the build survives it.
	wasStale := c.stale.Swap(false)
	next, err := build()
	if err != nil {
		if wasStale {
			c.stale.Store(true)
		}
		return c.current.Load(), false, err
	}
	c.current.Store(next)
	return next, true, nil
}

// Invalidate marks the published snapshot stale so the next Refresh rebuilds even if the
// version is unchanged. Readers keep the stale snapshot until then. An Invalidate that
// arrives while a rebuild is running also applies to the snapshot that rebuild publishes.
func (c *BoundsCache) Invalidate() {
	c.stale.Store(true)
}
