// Package status keeps the progress of the running scanner and serves it
// over HTTP.
package status

import (
	"sync"
	"time"
)

// Kind of a status event
type Kind string

const (
	ScanStarted  Kind = "scan_started"
	ScanFinished Kind = "scan_finished"
	VenueStarted Kind = "venue"
	Facility     Kind = "facility"
	SlotsFound   Kind = "slots_found"
	Booked       Kind = "booking"
	Failed       Kind = "error"
)

// Event is one progress notification from the scanner
type Event struct {
	Time              time.Time `json:"time"`
	Kind              Kind      `json:"kind"`
	RunID             string    `json:"run_id,omitempty"`
	Venue             string    `json:"venue,omitempty"`
	Facility          string    `json:"facility,omitempty"`
	Slots             int       `json:"slots,omitempty"`
	ReservationNumber string    `json:"reservation_number,omitempty"`
	Message           string    `json:"message,omitempty"`
}

// Snapshot is the tracker state served by /status
type Snapshot struct {
	Phase             Kind      `json:"phase"`
	RunID             string    `json:"run_id"`
	Venue             string    `json:"venue"`
	Facility          string    `json:"facility"`
	LastScan          time.Time `json:"last_scan"`
	LastError         string    `json:"last_error"`
	ReservationNumber string    `json:"reservation_number"`
	Events            []Event   `json:"events"`
}

// DefaultHistory is how many events a tracker keeps
const DefaultHistory = 50

// Tracker records scanner events. It is safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	state   Snapshot
	history int
	now     func() time.Time
}

// NewTracker creates a tracker keeping the latest history events
func NewTracker(history int) *Tracker {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Tracker{history: history, now: time.Now}
}

// Record applies ev to the tracked state
func (t *Tracker) Record(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Time.IsZero() {
		ev.Time = t.now()
	}
	s := &t.state
	s.Phase = ev.Kind
	switch ev.Kind {
	case ScanStarted:
		s.RunID = ev.RunID
		s.Venue, s.Facility = "", ""
	case ScanFinished:
		s.LastScan = ev.Time
	case VenueStarted:
		s.Venue, s.Facility = ev.Venue, ""
	case Facility:
		s.Facility = ev.Facility
	case Booked:
		s.ReservationNumber = ev.ReservationNumber
	case Failed:
		s.LastError = ev.Message
	}

	s.Events = append(s.Events, ev)
	if over := len(s.Events) - t.history; over > 0 {
		s.Events = append(s.Events[:0:0], s.Events[over:]...)
	}
}

// Snapshot returns a copy of the tracked state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.state
	s.Events = append([]Event(nil), t.state.Events...)
	return s
}
