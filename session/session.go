package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/avkit/reel/media"
	"github.com/avkit/reel/record"
	"github.com/avkit/reel/segment"
)

// ErrNoVideoProducer is returned when a recording is requested while no
// video producer is attached. Reported synchronously, before any recording
// state is created.
var ErrNoVideoProducer = errors.New("session: no video producer attached")

// Session is the capture hub. It holds at most one video producer and one
// audio producer, fans every delivered buffer out to all registered
// consumers in registration order, and constructs recording outputs and
// capture consumers on request. Producer start/stop follows registry edge
// transitions: the producer starts when its first consumer registers and
// stops when its last one leaves.
type Session struct {
	log      *slog.Logger
	registry Registry

	mu      sync.Mutex
	video   VideoProducer
	audio   AudioProducer
	outputs map[*record.Output]struct{}

	convFactory func() Converter
	convOnce    sync.Once
	converter   Converter
}

// Options configures a Session.
type Options struct {
	// Converter builds the shared pixel conversion context used by
	// one-shot captures. Created lazily, once, on first use; must be safe
	// for concurrent use. Nil means buffers pass through unconverted.
	Converter func() Converter

	// Log defaults to slog.Default().
	Log *slog.Logger
}

// New creates a Session with no producers attached.
func New(opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		log:         log.With("component", "session"),
		outputs:     make(map[*record.Output]struct{}),
		convFactory: opts.Converter,
	}
}

// SetVideoProducer attaches p as the session's single video producer,
// replacing (and stopping, if running) any previous one. A nil p detaches.
// If consumers are already registered, p is started immediately. The swap
// and the start/stop decision happen under the session mutex, the same
// lock serializing consumer registration, so a replacement racing a first
// consumer can neither double-start a producer nor leave it stranded.
func (s *Session) SetVideoProducer(p VideoProducer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.video
	s.video = p

	running := s.registry.VideoConsumerCount() > 0
	if old != nil && running {
		old.Stop()
	}
	if p != nil {
		p.SetSink(s)
		if running {
			p.Start()
		}
	}
}

// SetAudioProducer attaches p as the session's single audio producer,
// replacing any previous one.
func (s *Session) SetAudioProducer(p AudioProducer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.audio
	s.audio = p

	running := s.registry.AudioConsumerCount() > 0
	if old != nil && running {
		old.Stop()
	}
	if p != nil {
		p.SetSink(s)
		if running {
			p.Start()
		}
	}
}

// AppendVideoBuffer implements VideoConsumer: the active video producer
// delivers every raw frame here and the session fans it out. A panic in
// one consumer is recovered so siblings still receive the buffer and the
// producer is never disturbed.
func (s *Session) AppendVideoBuffer(b *media.Buffer) {
	for _, c := range s.registry.VideoConsumers() {
		s.safeVideoBuffer(c, b)
	}
}

// AppendVideoSample implements VideoConsumer for pre-encoded producers.
func (s *Session) AppendVideoSample(sm *media.Sample) {
	for _, c := range s.registry.VideoConsumers() {
		s.safeVideoSample(c, sm)
	}
}

// AppendAudioSample implements AudioConsumer.
func (s *Session) AppendAudioSample(sm *media.Sample) {
	for _, c := range s.registry.AudioConsumers() {
		s.safeAudioSample(c, sm)
	}
}

func (s *Session) safeVideoBuffer(c VideoConsumer, b *media.Buffer) {
	defer s.recoverConsumer()
	c.AppendVideoBuffer(b)
}

func (s *Session) safeVideoSample(c VideoConsumer, sm *media.Sample) {
	defer s.recoverConsumer()
	c.AppendVideoSample(sm)
}

func (s *Session) safeAudioSample(c AudioConsumer, sm *media.Sample) {
	defer s.recoverConsumer()
	c.AppendAudioSample(sm)
}

func (s *Session) recoverConsumer() {
	if r := recover(); r != nil {
		s.log.Error("consumer panicked during fan-out", "panic", r)
	}
}

// addVideoConsumer registers c and starts the video producer on the
// empty-to-non-empty transition. The registry transition and the start
// decision share the session mutex with SetVideoProducer, so the edge is
// applied to exactly one producer.
func (s *Session) addVideoConsumer(c VideoConsumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.AddVideoConsumer(c) {
		return
	}
	if s.video != nil {
		s.video.Start()
	}
}

// removeVideoConsumer deregisters c and stops the video producer on the
// non-empty-to-empty transition.
func (s *Session) removeVideoConsumer(c VideoConsumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.RemoveVideoConsumer(c) {
		return
	}
	if s.video != nil {
		s.video.Stop()
	}
}

func (s *Session) addAudioConsumer(c AudioConsumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.AddAudioConsumer(c) {
		return
	}
	if s.audio != nil {
		s.audio.Start()
	}
}

func (s *Session) removeAudioConsumer(c AudioConsumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.RemoveAudioConsumer(c) {
		return
	}
	if s.audio != nil {
		s.audio.Stop()
	}
}

// RecordingOptions configures one recording started via BeginRecording.
type RecordingOptions struct {
	// Destination is the output file path, or the destination directory
	// when Segment is set.
	Destination string

	// Segment switches the recording to streaming mode: fragments are
	// persisted under Segment.Dir (defaulting to Destination) alongside
	// an index manifest.
	Segment *segment.Config

	// Video configures the video track. A zero Size is filled from the
	// producer's native geometry.
	Video media.TrackConfig

	// Audio, when non-nil and an audio producer is attached, adds an
	// audio track fed by the session's audio fan-out.
	Audio *media.TrackConfig

	// Factory overrides the writer construction; when nil the session
	// picks a contiguous FileWriter or a segment recording from the
	// options above.
	Factory record.WriterFactory
}

// BeginRecording constructs a recording output, registers it for video
// (and audio, when configured) fan-out, and returns its handle. The
// returned handle is in the Starting or Ready phase; the caller must call
// Resume to begin appending. Fails with ErrNoVideoProducer when no video
// producer is attached.
func (s *Session) BeginRecording(opts RecordingOptions) (*record.Handle, error) {
	s.mu.Lock()
	vp := s.video
	ap := s.audio
	s.mu.Unlock()

	if vp == nil {
		return nil, ErrNoVideoProducer
	}

	videoCfg := opts.Video
	if videoCfg.Size == (media.Size{}) {
		videoCfg.Size = vp.Size()
	}
	videoCfg.Kind = media.TrackVideo

	factory := opts.Factory
	location := opts.Destination
	if opts.Segment != nil {
		segCfg := *opts.Segment
		if segCfg.Dir == "" {
			segCfg.Dir = opts.Destination
		}
		if segCfg.Log == nil {
			segCfg.Log = s.log
		}
		factory = segment.NewRecording(segCfg)
		location = segCfg.ManifestPath()
	} else if factory == nil {
		dest := opts.Destination
		factory = func() (record.Writer, error) {
			return record.NewFileWriter(dest)
		}
	}

	withAudio := opts.Audio != nil && ap != nil
	var audioCfg *media.TrackConfig
	if withAudio {
		cfg := *opts.Audio
		cfg.Kind = media.TrackAudio
		audioCfg = &cfg
	}

	out := record.NewOutput(record.Options{
		Factory:  factory,
		Video:    videoCfg,
		Audio:    audioCfg,
		Location: location,
		Log:      s.log,
		OnDetach: func(o *record.Output) {
			s.removeVideoConsumer(o)
			if withAudio {
				s.removeAudioConsumer(o)
			}
		},
		OnTerminal: func(o *record.Output) {
			s.mu.Lock()
			delete(s.outputs, o)
			s.mu.Unlock()
		},
	})

	s.mu.Lock()
	s.outputs[out] = struct{}{}
	s.mu.Unlock()

	s.addVideoConsumer(out)
	if withAudio {
		s.addAudioConsumer(out)
	}
	out.Begin()

	s.log.Info("recording started", "location", location, "audio", withAudio)
	return out.Handle(), nil
}

// ActiveRecordings returns the number of non-terminal recording outputs.
func (s *Session) ActiveRecordings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outputs)
}

// Close cancels every active recording and detaches both producers,
// stopping them if running. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	outputs := make([]*record.Output, 0, len(s.outputs))
	for o := range s.outputs {
		outputs = append(outputs, o)
	}
	s.mu.Unlock()

	for _, o := range outputs {
		o.Cancel()
	}
	s.SetVideoProducer(nil)
	s.SetAudioProducer(nil)
}
