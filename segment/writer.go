package segment

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/avkit/reel/media"
	"github.com/avkit/reel/record"
)

// Sentinel errors for segment-mode recording.
var (
	ErrAborted    = errors.New("segment: pipeline aborted")
	ErrOutOfOrder = errors.New("segment: fragment out of order")
)

// Defaults applied by Config.withDefaults.
const (
	DefaultPrefix       = "media"
	DefaultExt          = ".ts"
	DefaultManifestName = "index.m3u8"
	DefaultInterval     = time.Second
	defaultChannelDepth = 16
)

// Config describes a segment-mode destination.
type Config struct {
	// Dir is the destination directory for segment files and the manifest.
	Dir string

	// Prefix and Ext form segment filenames: <Prefix><seq><Ext>.
	// Defaults: "media" and ".ts".
	Prefix string
	Ext    string

	// ManifestName defaults to "index.m3u8".
	ManifestName string

	// Interval is the preferred fragment duration; a fragment is cut at
	// the first keyframe after this much media has accumulated. Default 1s.
	Interval time.Duration

	// ChannelDepth is the fragment channel buffer; when it is full the
	// writer reports not-ready and new media is dropped upstream.
	ChannelDepth int

	// Log defaults to slog.Default().
	Log *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Ext == "" {
		c.Ext = DefaultExt
	}
	if c.ManifestName == "" {
		c.ManifestName = DefaultManifestName
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ChannelDepth <= 0 {
		c.ChannelDepth = defaultChannelDepth
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return c
}

// ManifestPath returns the path of the index document for this config.
func (c Config) ManifestPath() string {
	c = c.withDefaults()
	return filepath.Join(c.Dir, c.ManifestName)
}

// FragmentName returns the filename for the fragment at seq.
func (c Config) FragmentName(seq int) string {
	c = c.withDefaults()
	return fmt.Sprintf("%s%d%s", c.Prefix, seq, c.Ext)
}

// NewRecording returns a record.WriterFactory whose writers emit fragments
// into a Pipeline persisting them under cfg.Dir. The writer's Finalize
// completes only after the pipeline has written every segment file and the
// manifest, so a recording's finish callback implies a durable directory.
func NewRecording(cfg Config) record.WriterFactory {
	cfg = cfg.withDefaults()
	return func() (record.Writer, error) {
		w := newWriter(cfg)
		p := NewPipeline(cfg, w.out, w.abort)
		go p.Run()
		w.result = p.Done()
		return w, nil
	}
}

// Writer is a record.Writer that packs appended media into ordered
// fragments. All methods run on the owning output's task queue goroutine,
// so the writer needs no internal locking.
type Writer struct {
	cfg    Config
	log    *slog.Logger
	out    chan Fragment
	abort  chan struct{}
	result <-chan error

	init     []byte
	initSent bool
	seq      int
	cur      []byte
	curDur   time.Duration
	lastPTS  time.Duration
	hasPTS   bool
	pending  []Fragment

	status     record.Status
	err        error
	resultSeen bool
	resultErr  error
}

// pollResult observes the pipeline result without blocking. A pipeline
// failure is published on the result channel while the fragment channel is
// still open, so the next status check fails the writer instead of letting
// appends silently feed a dead pipeline until finalize. The received value
// is cached for Finalize; the channel delivers exactly once.
func (w *Writer) pollResult() {
	if w.resultSeen || w.result == nil || w.status != record.StatusWriting {
		return
	}
	select {
	case err := <-w.result:
		w.resultSeen = true
		w.resultErr = err
		if err != nil {
			w.status = record.StatusFailed
			w.err = err
		}
	default:
	}
}

func newWriter(cfg Config) *Writer {
	return &Writer{
		cfg:    cfg,
		log:    cfg.Log.With("component", "segment-writer"),
		out:    make(chan Fragment, cfg.ChannelDepth),
		abort:  make(chan struct{}),
		status: record.StatusWriting,
	}
}

type segTrack struct {
	w    *Writer
	kind media.TrackKind
}

// Ready reports whether another sample can be accepted without force-feeding
// the pipeline: false while cut fragments are waiting for channel space.
func (t *segTrack) Ready() bool {
	t.w.pollResult()
	return t.w.status == record.StatusWriting &&
		len(t.w.pending) == 0 && len(t.w.out) < cap(t.w.out)
}

func (t *segTrack) AppendBuffer(b *media.Buffer) error {
	t.w.pollResult()
	if t.w.status != record.StatusWriting {
		return t.w.errOr(record.ErrWriterFailed)
	}
	var delta time.Duration
	if t.w.hasPTS && b.PTS > t.w.lastPTS {
		delta = b.PTS - t.w.lastPTS
	}
	t.w.append(b.Data, true, delta, b.PTS)
	return nil
}

func (t *segTrack) AppendSample(s *media.Sample) error {
	t.w.pollResult()
	if t.w.status != record.StatusWriting {
		return t.w.errOr(record.ErrWriterFailed)
	}
	if t.kind == media.TrackAudio {
		// Audio interleaves into the current fragment without cutting it
		// and without contributing duration; video is the cut authority.
		t.w.cur = append(t.w.cur, s.Data...)
		return nil
	}
	if s.Keyframe && len(t.w.cur) > 0 && t.w.curDur >= t.w.cfg.Interval {
		t.w.cut()
	}
	end := s.PTS + s.Duration
	t.w.append(s.Data, false, s.Duration, end)
	return nil
}

// AddVideoTrack implements record.Writer.
func (w *Writer) AddVideoTrack(cfg media.TrackConfig) (record.Track, error) {
	w.init = append(w.init, cfg.InitData...)
	return &segTrack{w: w, kind: media.TrackVideo}, nil
}

// AddAudioTrack implements record.Writer.
func (w *Writer) AddAudioTrack(cfg media.TrackConfig) (record.Track, error) {
	w.init = append(w.init, cfg.InitData...)
	return &segTrack{w: w, kind: media.TrackAudio}, nil
}

// StartSession emits the initialization fragment ahead of any media.
func (w *Writer) StartSession(time.Duration) {
	if w.initSent {
		return
	}
	w.initSent = true
	w.emit(Fragment{Seq: 0, Data: w.init, Init: true})
	w.seq = 1
}

// EndSession implements record.Writer. The open fragment is held across a
// pause so resumed media lands in the same segment.
func (w *Writer) EndSession(time.Duration) {}

// append accumulates payload into the current fragment. cutBefore applies
// the interval check before appending (used for raw buffers, which have no
// keyframe flag and may cut anywhere).
func (w *Writer) append(data []byte, cutBefore bool, dur time.Duration, endPTS time.Duration) {
	if cutBefore && len(w.cur) > 0 && w.curDur >= w.cfg.Interval {
		w.cut()
	}
	w.cur = append(w.cur, data...)
	w.curDur += dur
	w.lastPTS = endPTS
	w.hasPTS = true
}

// cut closes the current fragment and emits it.
func (w *Writer) cut() {
	frag := Fragment{
		Seq:    w.seq,
		Data:   w.cur,
		Report: &Report{Duration: w.curDur},
	}
	w.seq++
	w.cur = nil
	w.curDur = 0
	w.emit(frag)
}

// emit hands a fragment to the pipeline, buffering it locally when the
// channel is full. Buffered fragments are retried ahead of new ones so
// index order is preserved.
func (w *Writer) emit(f Fragment) {
	w.pending = append(w.pending, f)
	for len(w.pending) > 0 {
		select {
		case w.out <- w.pending[0]:
			w.pending = w.pending[1:]
		default:
			w.log.Debug("fragment channel full", "pending", len(w.pending))
			return
		}
	}
}

// Finalize flushes the trailing fragment, signals clean completion, and
// waits for the pipeline to persist the manifest.
func (w *Writer) Finalize() (record.Info, error) {
	w.pollResult()
	if w.status != record.StatusWriting {
		return record.Info{}, w.errOr(record.ErrWriterFailed)
	}
	if !w.initSent && (len(w.cur) > 0 || len(w.init) > 0) {
		w.StartSession(0)
	}
	if len(w.cur) > 0 {
		w.cut()
	}
	// The pipeline drains its input even after a failure, so these sends
	// cannot stall indefinitely.
	for _, f := range w.pending {
		w.out <- f
	}
	w.pending = nil
	close(w.out)

	err := w.resultErr
	if !w.resultSeen {
		err = <-w.result
		w.resultSeen = true
		w.resultErr = err
	}
	if err != nil {
		w.status = record.StatusFailed
		w.err = err
		return record.Info{}, err
	}
	w.status = record.StatusDone
	return record.Info{Location: w.cfg.ManifestPath()}, nil
}

// Cancel aborts the pipeline; partial segment files already written are
// left in place, and no manifest is produced. Idempotent.
func (w *Writer) Cancel() {
	if w.status == record.StatusDone || w.status == record.StatusCancelled {
		return
	}
	w.status = record.StatusCancelled
	close(w.abort)
	close(w.out)
}

// Status implements record.Writer.
func (w *Writer) Status() record.Status {
	w.pollResult()
	return w.status
}

// Err implements record.Writer.
func (w *Writer) Err() error {
	w.pollResult()
	return w.err
}

func (w *Writer) errOr(fallback error) error {
	if w.err != nil {
		return w.err
	}
	return fallback
}
