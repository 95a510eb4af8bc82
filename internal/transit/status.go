package transit

import (
	"time"

	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
)

// staleCycles is how many poll intervals a snapshot may age before Status
// reports it as stale.
const staleCycles = 3

// Status reports readiness and freshness.
type Status struct {
	ReferenceLoaded   bool              `json:"gtfsLoaded"`
	FeedConfigured    bool              `json:"ntaConnected"`
	Counts            *reference.Counts `json:"reference,omitempty"`
	Vehicles          int               `json:"count"`
	SnapshotTimestamp *time.Time        `json:"lastUpdate"`
	SnapshotAge       *float64          `json:"snapshotAgeSeconds"`
	Stale             bool              `json:"stale"`
	PollerState       string            `json:"pollerState,omitempty"`
	LastPollError     string            `json:"lastPollError,omitempty"`
	LastPoll          *time.Time        `json:"lastPoll,omitempty"`
}

// Ready reports whether the reference index is loaded.
func (st Status) Ready() bool {
	return st.ReferenceLoaded
}

// Status describes the service at now.
func (s *Service) Status(now time.Time) Status {
	var st Status

	if idx := s.Reference(); idx != nil {
		st.ReferenceLoaded = true
		counts := idx.Counts()
		st.Counts = &counts
	}

	cur := s.cache.Current()
	st.Vehicles = cur.Len()
	if !cur.Timestamp.IsZero() {
		ts := cur.Timestamp
		age := now.Sub(ts).Seconds()
		st.SnapshotTimestamp = &ts
		st.SnapshotAge = &age
	}

	if box := s.poller.Load(); box != nil && box.PollerStatus != nil {
		p := box.PollerStatus
		st.FeedConfigured = true
		st.PollerState = p.State().String()
		if err := p.LastError(); err != nil {
			st.LastPollError = err.Error()
		}
		if t, ok := p.LastCycle(); ok {
			st.LastPoll = &t
		}
		limit := time.Duration(staleCycles) * p.Interval()
		st.Stale = cur.Timestamp.IsZero() || now.Sub(cur.Timestamp) > limit
	}

	return st
}
