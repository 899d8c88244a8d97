package record

import "time"

// Handle is the caller-facing proxy for one recording output. It mirrors
// the output's state and accumulated duration, exposes the control surface,
// and carries the asynchronous error channel. The handle does not own the
// output: dropping a handle never cancels the recording, and a handle kept
// past the output's terminal state keeps observing the last terminal
// snapshot.
type Handle struct {
	o     *Output
	errCh chan error
}

func newHandle(o *Output) *Handle {
	return &Handle{o: o, errCh: make(chan error, 1)}
}

// Phase returns the current lifecycle phase.
func (h *Handle) Phase() Phase { return h.o.state().Phase }

// Duration returns the accumulated media duration so far.
func (h *Handle) Duration() time.Duration {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	return h.o.duration
}

// Location returns the eventual output location: the destination file
// path, or the manifest path in segment mode.
func (h *Handle) Location() string { return h.o.Location() }

// Info returns the completed recording's info. ok is false until the
// output reaches the Finished phase.
func (h *Handle) Info() (Info, bool) {
	st := h.o.state()
	return st.Info, st.Phase == PhaseFinished
}

// Err returns the channel on which asynchronous failures are delivered.
// At most one error is ever sent.
func (h *Handle) Err() <-chan error { return h.errCh }

// Resume begins or re-opens the recording session.
func (h *Handle) Resume() { h.o.Resume() }

// Pause suspends appending, preserving accumulated duration.
func (h *Handle) Pause() { h.o.Pause() }

// Finish finalizes the recording. See Output.Finish.
func (h *Handle) Finish(onComplete func(Info, error)) { h.o.Finish(onComplete) }

// Cancel aborts the recording. See Output.Cancel.
func (h *Handle) Cancel() { h.o.Cancel() }

// pushErr delivers err without blocking; only the first failure is kept.
func (h *Handle) pushErr(err error) {
	select {
	case h.errCh <- err:
	default:
	}
}
