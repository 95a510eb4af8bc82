// Package snapshot holds the current and previous batches of vehicle
// positions. The pair is swapped with a single atomic pointer store, so
// readers never block on the poller and never see a half-published pair.
package snapshot

import (
	"sync/atomic"
	"time"
)

// VehiclePosition is one enriched vehicle report. Values are created once per
// poll cycle and never mutated afterwards.
type VehiclePosition struct {
	ID          string    `json:"id"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lng"`
	Bearing     float64   `json:"bearing"`
	RouteID     string    `json:"route_id"`
	RouteName   string    `json:"route_short_name"`
	RouteColor  string    `json:"route_color"`
	AgencyID    string    `json:"agency_id,omitempty"`
	TripID      string    `json:"trip_id,omitempty"`
	DirectionID *int      `json:"direction_id"`
	Headsign    string    `json:"headsign"`
	Resolved    bool      `json:"-"`
	Timestamp   time.Time `json:"timestamp"`
}

// Snapshot is a consistent batch of positions captured at a single instant.
// Seq is assigned by Cache.Publish and increases with every publish.
type Snapshot struct {
	Seq       uint64            `json:"seq"`
	Positions []VehiclePosition `json:"positions"`
	Timestamp time.Time         `json:"timestamp"`
}

// IsZero reports whether nothing has been captured into s.
func (s Snapshot) IsZero() bool {
	return s.Timestamp.IsZero() && len(s.Positions) == 0
}

// Len returns the number of positions in s.
func (s Snapshot) Len() int {
	return len(s.Positions)
}

// ByID indexes the positions of s by entity id. Later duplicates win.
func (s Snapshot) ByID() map[string]VehiclePosition {
	out := make(map[string]VehiclePosition, len(s.Positions))
	for _, p := range s.Positions {
		out[p.ID] = p
	}
	return out
}

// Pair is the current snapshot and the one it replaced.
type Pair struct {
	Current  Snapshot
	Previous Snapshot
}

// Cache retains exactly one current and one previous snapshot. The zero value
// is ready to use. Publish must only be called from a single writer.
type Cache struct {
	pair      atomic.Pointer[Pair]
	published atomic.Uint64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Publish makes s the current snapshot and demotes the old current to
// previous. On the first publish previous and current are the same snapshot.
// A timestamp older than the current one is raised to it so that
// current.Timestamp never falls behind previous.Timestamp.
func (c *Cache) Publish(s Snapshot) {
	s.Seq = c.published.Add(1)
	old := c.pair.Load()
	next := &Pair{Current: s, Previous: s}
	if old != nil {
		if s.Timestamp.Before(old.Current.Timestamp) {
			next.Current.Timestamp = old.Current.Timestamp
		}
		next.Previous = old.Current
	}
	c.pair.Store(next)
}

// Pair returns the current and previous snapshots from the same publish.
func (c *Cache) Pair() Pair {
	if p := c.pair.Load(); p != nil {
		return *p
	}
	return Pair{}
}

// Current returns the most recently published snapshot, or an empty snapshot
// with a zero timestamp before the first publish.
func (c *Cache) Current() Snapshot {
	return c.Pair().Current
}

// Previous returns the snapshot replaced by the most recent publish.
func (c *Cache) Previous() Snapshot {
	return c.Pair().Previous
}

// Age returns how long ago the current snapshot was captured. It returns
// false before the first publish.
func (c *Cache) Age(now time.Time) (time.Duration, bool) {
	cur := c.Current()
	if cur.Timestamp.IsZero() {
		return 0, false
	}
	return now.Sub(cur.Timestamp), true
}

// Published returns the number of snapshots published so far.
func (c *Cache) Published() uint64 {
	return c.published.Load()
}
