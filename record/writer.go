package record

import (
	"errors"
	"time"

	"github.com/avkit/reel/media"
)

// Sentinel errors surfaced by recording outputs and writers.
var (
	ErrCannotAddTrack  = errors.New("record: writer cannot add track")
	ErrWriterFailed    = errors.New("record: writer entered failed status")
	ErrAlreadyTerminal = errors.New("record: output already terminal")
)

// Status is the coarse health of a writer resource.
type Status int

// Writer statuses.
const (
	StatusWriting Status = iota
	StatusFailed
	StatusDone
	StatusCancelled
)

// Track is one media track on a writer. Ready reports whether the track
// will accept another sample right now; when it returns false the output
// drops the pending buffer rather than queueing it (last-one-wins
// backpressure). Append returns an error only when the writer is failed.
type Track interface {
	Ready() bool
	AppendBuffer(b *media.Buffer) error
	AppendSample(s *media.Sample) error
}

// Writer is the opaque encoder/muxer resource owned by one recording
// output. All methods are invoked from the output's single task queue
// goroutine, so implementations need no internal locking against the
// output itself. Finalize may block; the output's queue absorbs that
// without blocking callers.
type Writer interface {
	AddVideoTrack(cfg media.TrackConfig) (Track, error)
	AddAudioTrack(cfg media.TrackConfig) (Track, error)

	// StartSession and EndSession bracket one timestamped span of media.
	// A writer sees at most one open session at a time; pause/resume maps
	// to end/start pairs at the source timestamps.
	StartSession(at time.Duration)
	EndSession(at time.Duration)

	// Finalize flushes and closes the destination, returning its location.
	// Called at most once, never after Cancel.
	Finalize() (Info, error)

	// Cancel aborts immediately, discarding unwritten data. Idempotent.
	Cancel()

	Status() Status
	Err() error
}

// WriterFactory constructs the writer resource for one recording output.
// It runs on the output's task queue, asynchronously from the caller that
// started the recording; a construction error lands the output in Failed
// without a partial writer left running.
type WriterFactory func() (Writer, error)
