package session

import (
	"errors"
	"sync"

	"github.com/avkit/reel/record"
)

// ErrAlreadyRecording is returned by Recorder.Begin while a previous
// recording owned by the same Recorder is still live.
var ErrAlreadyRecording = errors.New("session: recording already in progress")

// Recorder owns at most one live recording at a time, the usual shape for
// an application surface that exposes a single record button. A second
// Begin while one is active fails synchronously without disturbing the
// existing recording; once the handle reaches a terminal phase a new one
// may be started.
type Recorder struct {
	s *Session

	mu     sync.Mutex
	handle *record.Handle
}

// NewRecorder creates a Recorder on s.
func NewRecorder(s *Session) *Recorder {
	return &Recorder{s: s}
}

// Begin starts a new recording via the session.
func (r *Recorder) Begin(opts RecordingOptions) (*record.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle != nil && !r.handle.Phase().Terminal() {
		return nil, ErrAlreadyRecording
	}

	h, err := r.s.BeginRecording(opts)
	if err != nil {
		return nil, err
	}
	r.handle = h
	return h, nil
}

// Current returns the most recently started handle, or nil.
func (r *Recorder) Current() *record.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}
