// Package record implements the recording output engine: a state machine
// driven writer owner that serializes all writer mutations onto a single
// task queue, tracks accumulated duration, and exposes a caller-facing
// handle for control and observation.
package record

import "time"

// Phase is the lifecycle phase of a recording output.
type Phase int

// Lifecycle phases. Finished, Failed, and Cancelled are terminal: once
// reached, no further transition is accepted.
const (
	PhaseStarting Phase = iota // writer resource is being constructed
	PhaseReady                 // writer exists, session not yet timestamped
	PhaseRecording
	PhasePaused
	PhaseFinishing
	PhaseFinished
	PhaseFailed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhaseRecording:
		return "recording"
	case PhasePaused:
		return "paused"
	case PhaseFinishing:
		return "finishing"
	case PhaseFinished:
		return "finished"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase accepts no further transitions.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseFinished, PhaseFailed, PhaseCancelled:
		return true
	default:
		return false
	}
}

// Info describes a completed recording, delivered to finish callbacks and
// readable from a terminal handle.
type Info struct {
	Location string        // single file path, or manifest path in segment mode
	Duration time.Duration // accumulated media duration
}

// State is the full state of a recording output: the current phase plus the
// payload carried by that phase. It is a value type; transitions return a
// new State and report whether the event was legal from the current phase.
type State struct {
	Phase    Phase
	StartPTS time.Duration // Recording: source time the open session began at
	Offset   time.Duration // accumulated duration from previous sessions
	Info     Info          // Finished only
	Err      error         // Failed only
}

// resume transitions to Recording with an open session starting at pts.
// Legal from Starting, Ready, and Paused; a no-op (ok) when already
// recording. Returns ok=false from any other phase.
func (s State) resume(pts time.Duration) (State, bool) {
	switch s.Phase {
	case PhaseStarting, PhaseReady, PhasePaused:
		s.Phase = PhaseRecording
		s.StartPTS = pts
		return s, true
	case PhaseRecording:
		return s, true
	default:
		return s, false
	}
}

// pause transitions Recording to Paused, carrying the accumulated duration
// measured by the output so far.
func (s State) pause(offset time.Duration) (State, bool) {
	if s.Phase != PhaseRecording {
		return s, false
	}
	s.Phase = PhasePaused
	s.Offset = offset
	return s, true
}

// finishing marks the output as finalizing. Legal from any non-terminal phase.
func (s State) finishing() (State, bool) {
	if s.Phase.Terminal() || s.Phase == PhaseFinishing {
		return s, false
	}
	s.Phase = PhaseFinishing
	return s, true
}

// finished lands in the Finished terminal phase carrying info.
func (s State) finished(info Info) (State, bool) {
	if s.Phase.Terminal() {
		return s, false
	}
	s.Phase = PhaseFinished
	s.Info = info
	return s, true
}

// cancelled lands in the Cancelled terminal phase. Legal from any
// non-terminal phase.
func (s State) cancelled() (State, bool) {
	if s.Phase.Terminal() {
		return s, false
	}
	s.Phase = PhaseCancelled
	return s, true
}

// failed lands in the Failed terminal phase carrying err. Legal from any
// non-terminal phase; a failure after a terminal phase is dropped.
func (s State) failed(err error) (State, bool) {
	if s.Phase.Terminal() {
		return s, false
	}
	s.Phase = PhaseFailed
	s.Err = err
	return s, true
}
