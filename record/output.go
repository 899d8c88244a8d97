package record

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avkit/reel/media"
)

// ErrCancelled is delivered to finish callbacks issued against an output
// that ended in the Cancelled phase.
var ErrCancelled = errors.New("record: recording cancelled")

// defaultAppendBacklog bounds how many append tasks may sit on the queue
// before further appends are dropped. Matches the last-one-wins policy of a
// not-ready writer track: the producer is rate-limited upstream, so dropped
// frames are recovered naturally by later, fresher ones.
const defaultAppendBacklog = 64

// Options configures one recording output.
type Options struct {
	// Factory constructs the writer resource. Runs asynchronously on the
	// output's task queue; required.
	Factory WriterFactory

	// Video is the configuration of the mandatory video track.
	Video media.TrackConfig

	// Audio, when non-nil, adds an audio track.
	Audio *media.TrackConfig

	// Location is the caller-visible output destination (file path, or
	// manifest path in segment mode). Reported on the handle before the
	// writer finalizes.
	Location string

	// AppendBacklog overrides defaultAppendBacklog when positive.
	AppendBacklog int

	// OnDetach is invoked exactly once, as soon as finish, cancel, or a
	// failure makes the output stop accepting media. Used by the session
	// to deregister the output from its fan-out registry.
	OnDetach func(*Output)

	// OnTerminal is invoked exactly once after the output reaches a
	// terminal phase and its queue has shut down.
	OnTerminal func(*Output)

	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Output owns one writer resource for one recording and drives its
// lifecycle state machine. All writer mutations run on a single ordered
// task queue; every public operation enqueues and returns without blocking
// the caller. Output implements the session's video and audio consumer
// interfaces, so it can be registered directly for fan-out.
type Output struct {
	log      *slog.Logger
	q        *taskQueue
	opts     Options
	backlog  int
	handle   *Handle
	detachFn sync.Once

	// Owned by the queue goroutine.
	writer      Writer
	video       Track
	audio       Track
	sessionOpen bool

	// Snapshot fields, written by the queue goroutine under mu and read
	// by the handle from any goroutine.
	mu       sync.Mutex
	st       State
	duration time.Duration
	lastPTS  time.Duration
	hasPTS   bool
}

// NewOutput creates an Output and begins constructing its writer
// asynchronously. The returned output is in the Starting phase; its handle
// observes Ready once the writer and tracks exist, or Failed if
// construction errors.
func NewOutput(opts Options) *Output {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	backlog := opts.AppendBacklog
	if backlog <= 0 {
		backlog = defaultAppendBacklog
	}

	o := &Output{
		log:     log.With("component", "record-output"),
		opts:    opts,
		backlog: backlog,
		st:      State{Phase: PhaseStarting},
	}
	o.handle = newHandle(o)
	o.q = newTaskQueue()
	return o
}

// Begin schedules asynchronous construction of the writer resource. Called
// exactly once, after the owner has registered the output, so a fast
// construction failure cannot detach the output before it is attached.
func (o *Output) Begin() {
	o.q.push(o.construct)
}

// Handle returns the caller-facing proxy for this output.
func (o *Output) Handle() *Handle { return o.handle }

// Location returns the caller-visible output destination.
func (o *Output) Location() string { return o.opts.Location }

func (o *Output) construct() {
	w, err := o.opts.Factory()
	if err != nil {
		o.fail(fmt.Errorf("record: writer construction: %w", err))
		return
	}

	video, err := w.AddVideoTrack(o.opts.Video)
	if err != nil {
		w.Cancel()
		o.fail(fmt.Errorf("%w: video: %v", ErrCannotAddTrack, err))
		return
	}
	var audio Track
	if o.opts.Audio != nil {
		audio, err = w.AddAudioTrack(*o.opts.Audio)
		if err != nil {
			w.Cancel()
			o.fail(fmt.Errorf("%w: audio: %v", ErrCannotAddTrack, err))
			return
		}
	}

	o.writer = w
	o.video = video
	o.audio = audio
	o.setState(State{Phase: PhaseReady})
}

// Resume opens (or re-opens) the recording session. The session start is
// deferred to the first appended buffer's timestamp, both on the initial
// resume and after a pause, so source time that elapsed while not
// recording never enters the duration accounting. A resume on an
// already-recording output is a no-op; a resume on a terminal output is a
// logged no-op.
func (o *Output) Resume() {
	if !o.q.push(o.resumeTask) {
		o.log.Debug("resume ignored, output terminal")
	}
}

func (o *Output) resumeTask() {
	st, ok := o.st.resume(o.lastPTS)
	if !ok {
		o.log.Debug("resume ignored", "phase", o.st.Phase)
		return
	}
	o.setState(st)
}

// Pause ends the open session at the last seen source timestamp,
// preserving accumulated duration. Legal only while recording.
func (o *Output) Pause() {
	if !o.q.push(o.pauseTask) {
		o.log.Debug("pause ignored, output terminal")
	}
}

func (o *Output) pauseTask() {
	st, ok := o.st.pause(o.duration)
	if !ok {
		o.log.Debug("pause ignored", "phase", o.st.Phase)
		return
	}
	if o.sessionOpen {
		o.writer.EndSession(o.lastPTS)
		o.sessionOpen = false
	}
	// Drop the timestamp anchor: the next appended buffer re-anchors
	// lastPTS, so the paused span of source time contributes no duration.
	o.mu.Lock()
	o.hasPTS = false
	o.mu.Unlock()
	o.setState(st)
}

// Finish ends the session, finalizes the writer, and lands in a terminal
// phase. onComplete fires exactly once per call, asynchronously, even when
// the output is already terminal; the underlying finalize runs at most
// once across all calls.
func (o *Output) Finish(onComplete func(Info, error)) {
	o.detach()
	if !o.q.push(func() { o.finishTask(onComplete) }) {
		info, err := o.terminalResult()
		if onComplete != nil {
			go onComplete(info, err)
		}
	}
}

func (o *Output) finishTask(onComplete func(Info, error)) {
	if o.st.Phase.Terminal() {
		info, err := o.terminalResult()
		if onComplete != nil {
			go onComplete(info, err)
		}
		return
	}

	st, _ := o.st.finishing()
	o.setState(st)

	if o.sessionOpen {
		o.writer.EndSession(o.lastPTS)
		o.sessionOpen = false
	}

	info, err := o.writer.Finalize()
	if err != nil {
		err = fmt.Errorf("record: finalize: %w", err)
		fst, _ := o.st.failed(err)
		o.setState(fst)
		o.handle.pushErr(err)
		if onComplete != nil {
			go onComplete(Info{}, err)
		}
		o.terminalize()
		return
	}

	info.Duration = o.duration
	if info.Location == "" {
		info.Location = o.opts.Location
	}
	fst, _ := o.st.finished(info)
	o.setState(fst)
	o.log.Info("recording finished", "location", info.Location, "duration", info.Duration)
	if onComplete != nil {
		go onComplete(info, nil)
	}
	o.terminalize()
}

// Cancel aborts the writer immediately, discarding buffered but unwritten
// data. Idempotent, legal from any phase, and ordered with appends: an
// append enqueued before the cancel is attempted first, one enqueued after
// becomes a no-op.
func (o *Output) Cancel() {
	o.detach()
	o.q.push(o.cancelTask)
}

func (o *Output) cancelTask() {
	st, ok := o.st.cancelled()
	if !ok {
		return
	}
	if o.writer != nil {
		o.writer.Cancel()
	}
	o.setState(st)
	o.log.Info("recording cancelled", "location", o.opts.Location)
	o.terminalize()
}

// AppendVideoBuffer implements the session's video consumer interface for
// raw frames. Never blocks the producer; the buffer is dropped when the
// output is not recording, the track is not ready, or the queue backlog is
// full.
func (o *Output) AppendVideoBuffer(b *media.Buffer) {
	o.q.pushLimited(func() { o.appendVideoBuffer(b) }, o.backlog)
}

func (o *Output) appendVideoBuffer(b *media.Buffer) {
	if !o.appendReady(b.PTS) {
		return
	}
	if !o.video.Ready() {
		o.log.Debug("video track not ready, dropping buffer", "pts", b.PTS)
		return
	}
	if err := o.video.AppendBuffer(b); err != nil {
		o.fail(fmt.Errorf("record: append video buffer: %w", err))
		return
	}

	// Raw-buffer accounting: duration advances by the delta from the last
	// seen timestamp.
	o.mu.Lock()
	if o.hasPTS && b.PTS > o.lastPTS {
		o.duration += b.PTS - o.lastPTS
	}
	o.lastPTS = b.PTS
	o.hasPTS = true
	o.mu.Unlock()
}

// AppendVideoSample implements the session's video consumer interface for
// pre-encoded samples.
func (o *Output) AppendVideoSample(s *media.Sample) {
	o.q.pushLimited(func() { o.appendVideoSample(s) }, o.backlog)
}

func (o *Output) appendVideoSample(s *media.Sample) {
	if !o.appendReady(s.PTS) {
		return
	}
	if !o.video.Ready() {
		o.log.Debug("video track not ready, dropping sample", "pts", s.PTS)
		return
	}
	if err := o.video.AppendSample(s); err != nil {
		o.fail(fmt.Errorf("record: append video sample: %w", err))
		return
	}

	// Compressed-sample accounting: duration advances by the sample's own
	// declared duration and the last seen timestamp moves past its end.
	o.mu.Lock()
	if s.Duration > 0 {
		o.duration += s.Duration
		o.lastPTS = s.PTS + s.Duration
	} else {
		o.lastPTS = s.PTS
	}
	o.hasPTS = true
	o.mu.Unlock()
}

// AppendAudioSample implements the session's audio consumer interface.
// Audio does not advance the accumulated duration; video is the timing
// authority of an output.
func (o *Output) AppendAudioSample(s *media.Sample) {
	o.q.pushLimited(func() { o.appendAudioSample(s) }, o.backlog)
}

func (o *Output) appendAudioSample(s *media.Sample) {
	if o.audio == nil || !o.appendReady(s.PTS) {
		return
	}
	if !o.audio.Ready() {
		o.log.Debug("audio track not ready, dropping sample", "pts", s.PTS)
		return
	}
	if err := o.audio.AppendSample(s); err != nil {
		o.fail(fmt.Errorf("record: append audio sample: %w", err))
	}
}

// appendReady reports whether an append may proceed, opening the writer
// session at pts when it is the first media of an open recording span. A
// writer already in failed status trips the failure path.
func (o *Output) appendReady(pts time.Duration) bool {
	if o.st.Phase != PhaseRecording {
		return false
	}
	if o.writer.Status() == StatusFailed {
		err := o.writer.Err()
		if err == nil {
			err = ErrWriterFailed
		}
		o.fail(err)
		return false
	}
	if !o.sessionOpen {
		o.writer.StartSession(pts)
		o.sessionOpen = true
		o.mu.Lock()
		o.st.StartPTS = pts
		if !o.hasPTS {
			o.lastPTS = pts
			o.hasPTS = true
		}
		o.mu.Unlock()
	}
	return true
}

// fail lands the output in Failed, releasing the writer and surfacing err
// on the handle's error channel. Runs on the queue goroutine.
func (o *Output) fail(err error) {
	st, ok := o.st.failed(err)
	if !ok {
		return
	}
	if o.sessionOpen {
		o.writer.EndSession(o.lastPTS)
		o.sessionOpen = false
	}
	if o.writer != nil {
		o.writer.Cancel()
	}
	o.setState(st)
	o.log.Warn("recording failed", "error", err)
	o.handle.pushErr(err)
	o.terminalize()
}

// terminalize shuts the queue down and notifies the owner. Runs on the
// queue goroutine after a terminal state has been set.
func (o *Output) terminalize() {
	o.detach()
	o.q.close()
	if o.opts.OnTerminal != nil {
		o.opts.OnTerminal(o)
	}
}

func (o *Output) detach() {
	o.detachFn.Do(func() {
		if o.opts.OnDetach != nil {
			o.opts.OnDetach(o)
		}
	})
}

func (o *Output) setState(st State) {
	o.mu.Lock()
	from := o.st.Phase
	o.st = st
	o.mu.Unlock()
	if from != st.Phase {
		o.log.Debug("state transition", "from", from, "to", st.Phase)
	}
}

// state returns a snapshot of the current state.
func (o *Output) state() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.st
}

// terminalResult maps the known terminal state to the finish-callback pair.
func (o *Output) terminalResult() (Info, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.st.Phase {
	case PhaseFinished:
		return o.st.Info, nil
	case PhaseFailed:
		return Info{}, o.st.Err
	case PhaseCancelled:
		return Info{Location: o.opts.Location, Duration: o.duration}, ErrCancelled
	default:
		return Info{}, ErrAlreadyTerminal
	}
}
