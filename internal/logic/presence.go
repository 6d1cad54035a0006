package logic

import "time"

// PresenceDetector tracks presence and detects debounced transitions.
type PresenceDetector struct {
	thresholdCm     float64
	debounceSamples int
	state           PresenceState
	pending         Presence
	pendingCount    int
	counts          Counts
}

// NewPresenceDetector creates a detector that starts Absent at startTime.
// A transition requires debounceSamples consecutive valid samples on the
// other side of thresholdCm; values below 1 are treated as 1.
func NewPresenceDetector(thresholdCm float64, debounceSamples int, startTime time.Time) *PresenceDetector {
	if debounceSamples < 1 {
		debounceSamples = 1
	}
	return &PresenceDetector{
		thresholdCm:     thresholdCm,
		debounceSamples: debounceSamples,
		state:           PresenceState{State: Absent, Since: startTime},
	}
}

// Process takes a new sample and returns a transition if the presence
// state changed. Invalid samples carry no information and never change
// state, nor do they reset a pending transition.
func (d *PresenceDetector) Process(s DistanceSample) *Transition {
	if !s.Valid {
		d.counts.InvalidSamples++
		return nil
	}

	observed := Absent
	if s.DistanceCm < d.thresholdCm {
		observed = Present
	}

	if observed == d.state.State {
		// Back on the stable side, clear any pending
		d.pending = ""
		d.pendingCount = 0
		return nil
	}

	if d.pending != observed {
		d.pending = observed
		d.pendingCount = 0
	}
	d.pendingCount++
	if d.pendingCount < d.debounceSamples {
		return nil
	}

	tr := &Transition{
		From:   d.state.State,
		To:     observed,
		At:     s.MeasuredAt,
		Sample: s,
	}
	d.state = PresenceState{State: observed, Since: s.MeasuredAt}
	d.pending = ""
	d.pendingCount = 0

	if observed == Present {
		d.counts.PresentTransitions++
	} else {
		d.counts.AbsentTransitions++
	}
	return tr
}

// State returns the current debounced presence state.
func (d *PresenceDetector) State() PresenceState {
	return d.state
}

// Counts returns transition and invalid-sample counts since startup.
func (d *PresenceDetector) Counts() Counts {
	return d.counts
}
