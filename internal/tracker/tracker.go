// Package tracker turns noisy per-frame detections into a stable
// per-label "seen today" signal with a scheduled daily reset.
package tracker

import (
	"time"

	"github.com/google/uuid"
)

// CarrierState is the per-label daily state. FirstSeen is set once per
// effective day, on the first observation; LastSeen advances on every
// observation.
type CarrierState struct {
	Label         string     `json:"label"`
	DetectedToday bool       `json:"detected_today"`
	FirstSeen     *time.Time `json:"first_seen,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
}

// FirstTrigger is emitted exactly once per label per effective day,
// when the label transitions into the detected state.
type FirstTrigger struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	At    time.Time `json:"at"`
}

// Snapshot is the full tracker state at a point in time. It is a deep
// copy and safe to hand to the publisher.
type Snapshot struct {
	AsOf        time.Time      `json:"as_of"`
	DayBoundary string         `json:"day_boundary"`
	States      []CarrierState `json:"states"`
}

// Tracker maintains one state machine per tracked label. It is owned
// by the detection loop and must not be shared across goroutines.
type Tracker struct {
	labels        []string
	states        map[string]*CarrierState
	resetHour     int
	lastResetDate time.Time
}

// New creates a tracker for the given labels in the given order. The
// order is preserved in snapshots. now seeds the current effective day
// so the first cycle does not count as a reset.
func New(labels []string, resetHour int, now time.Time) *Tracker {
	states := make(map[string]*CarrierState, len(labels))
	order := make([]string, 0, len(labels))
	for _, label := range labels {
		if _, ok := states[label]; ok {
			continue
		}
		states[label] = &CarrierState{Label: label}
		order = append(order, label)
	}
	return &Tracker{
		labels:        order,
		states:        states,
		resetHour:     resetHour,
		lastResetDate: effectiveDay(now, resetHour),
	}
}

// effectiveDay maps a wall-clock time to the tracker's logical date.
// Before the reset hour the time still belongs to the previous day, so
// a detection at 01:30 does not survive past 03:00.
func effectiveDay(now time.Time, resetHour int) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Hour() < resetHour {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// Rollover clears all state when now falls on a new effective day.
// It runs at the top of every cycle, whether or not the cycle goes on
// to produce detections, so an outage spanning the reset hour still
// rolls the day over. Returns whether a reset happened.
func (t *Tracker) Rollover(now time.Time) bool {
	day := effectiveDay(now, t.resetHour)
	if day.Equal(t.lastResetDate) {
		return false
	}
	for _, st := range t.states {
		st.DetectedToday = false
		st.FirstSeen = nil
		st.LastSeen = nil
	}
	t.lastResetDate = day
	return true
}

// Observe applies one cycle's filtered detections. The daily reset, if
// due, runs before any of this cycle's labels are recorded. Labels not
// tracked are ignored. Returns any first-trigger events plus whether a
// reset happened.
func (t *Tracker) Observe(now time.Time, seen []string) ([]FirstTrigger, bool) {
	reset := t.Rollover(now)

	var triggers []FirstTrigger
	for _, label := range seen {
		st, ok := t.states[label]
		if !ok {
			continue
		}
		ts := now
		st.LastSeen = &ts
		if !st.DetectedToday {
			st.DetectedToday = true
			st.FirstSeen = &ts
			triggers = append(triggers, FirstTrigger{
				ID:    uuid.NewString(),
				Label: label,
				At:    now,
			})
		}
	}
	return triggers, reset
}

// Snapshot returns a deep copy of the current state, ordered by the
// label order given at construction.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	states := make([]CarrierState, 0, len(t.labels))
	for _, label := range t.labels {
		st := *t.states[label]
		if st.FirstSeen != nil {
			ts := *st.FirstSeen
			st.FirstSeen = &ts
		}
		if st.LastSeen != nil {
			ts := *st.LastSeen
			st.LastSeen = &ts
		}
		states = append(states, st)
	}
	return Snapshot{
		AsOf:        now,
		DayBoundary: t.lastResetDate.Format("2006-01-02"),
		States:      states,
	}
}

// Labels returns the tracked labels in snapshot order.
func (t *Tracker) Labels() []string {
	out := make([]string, len(t.labels))
	copy(out, t.labels)
	return out
}
