package motion

import (
	"context"
	"time"

	"github.com/LabartaPablo/BUS-REALTIME/internal/snapshot"
)

// DefaultWindow is how long a transition between two snapshots lasts.
const DefaultWindow = 12 * time.Second

// Baseline selects the instant progress is measured from.
type Baseline int

const (
	// BaselinePublish measures progress from the current snapshot's capture
	// timestamp, so every viewer of the same pair agrees on the position.
	BaselinePublish Baseline = iota
	// BaselineObserved measures progress from the moment the interpolator
	// first saw the pair.
	BaselineObserved
)

// Frame is one interpolated vehicle position. Vehicle is the current report
// the frame is heading to.
type Frame struct {
	ID        string                   `json:"id"`
	Latitude  float64                  `json:"lat"`
	Longitude float64                  `json:"lng"`
	Bearing   float64                  `json:"bearing"`
	Progress  float64                  `json:"progress"`
	Vehicle   snapshot.VehiclePosition `json:"vehicle"`
}

// Interpolator derives frames from the latest observed snapshot pair. It is
// not safe for concurrent use; run it on the frame loop goroutine.
type Interpolator struct {
	window   time.Duration
	baseline Baseline

	seq      uint64
	observed bool
	start    time.Time
	current  []snapshot.VehiclePosition
	previous map[string]snapshot.VehiclePosition
}

// Option configures an Interpolator.
type Option func(*Interpolator)

// WithWindow sets the transition length.
func WithWindow(d time.Duration) Option {
	return func(ip *Interpolator) { ip.window = d }
}

// WithBaseline sets the progress baseline.
func WithBaseline(b Baseline) Option {
	return func(ip *Interpolator) { ip.baseline = b }
}

// NewInterpolator returns an Interpolator with DefaultWindow and
// BaselinePublish unless overridden.
func NewInterpolator(opts ...Option) *Interpolator {
	ip := &Interpolator{window: DefaultWindow, baseline: BaselinePublish}
	for _, opt := range opts {
		opt(ip)
	}
	return ip
}

// Observe records pair as the transition to render. It returns true and
// resets the progress baseline when pair differs from the last one observed.
func (ip *Interpolator) Observe(pair snapshot.Pair, now time.Time) bool {
	cur := pair.Current
	if ip.observed && cur.Seq == ip.seq {
		return false
	}

	ip.observed = true
	ip.seq = cur.Seq
	ip.current = cur.Positions
	ip.previous = pair.Previous.ByID()
	if pair.Previous.Seq == cur.Seq {
		// Degenerate first pair: nothing to move from.
		ip.previous = nil
	}

	ip.start = now
	if ip.baseline == BaselinePublish && !cur.Timestamp.IsZero() {
		ip.start = cur.Timestamp
	}
	return true
}

// Progress returns the transition progress at now.
func (ip *Interpolator) Progress(now time.Time) float64 {
	return Progress(now.Sub(ip.start), ip.window)
}

// Frames computes one frame for every vehicle in the observed current
// snapshot. Vehicles without a previous report are placed at their current
// position; vehicles that left the feed produce no frame.
func (ip *Interpolator) Frames(now time.Time) []Frame {
	if !ip.observed {
		return nil
	}

	p := ip.Progress(now)
	frames := make([]Frame, 0, len(ip.current))
	for _, cur := range ip.current {
		prev, ok := ip.previous[cur.ID]
		if !ok {
			frames = append(frames, Frame{
				ID:        cur.ID,
				Latitude:  cur.Latitude,
				Longitude: cur.Longitude,
				Bearing:   NormalizeBearing(cur.Bearing),
				Progress:  1,
				Vehicle:   cur,
			})
			continue
		}
		frames = append(frames, Frame{
			ID:        cur.ID,
			Latitude:  Lerp(prev.Latitude, cur.Latitude, p),
			Longitude: Lerp(prev.Longitude, cur.Longitude, p),
			Bearing:   InterpolateBearing(prev.Bearing, cur.Bearing, p),
			Progress:  p,
			Vehicle:   cur,
		})
	}
	return frames
}

// Source provides snapshot pairs, typically a *snapshot.Cache.
type Source interface {
	Pair() snapshot.Pair
}

// Run drives the frame loop: on every tick it reads source, observes any new
// pair and hands the frames for that tick to render. It returns nil when
// ticks is closed and the context error when ctx is done. Nothing is rendered
// after Run returns.
func (ip *Interpolator) Run(ctx context.Context, ticks <-chan time.Time, source Source, render func([]Frame)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now, ok := <-ticks:
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ip.Observe(source.Pair(), now)
			render(ip.Frames(now))
		}
	}
}
