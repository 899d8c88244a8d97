package srt

import (
	"sync"

	"github.com/avkit/reel/media"
	"github.com/avkit/reel/session"
)

// videoProducer is the session-facing video producer of a Listener. Start
// and Stop gate sample delivery; the network connection itself outlives
// them, so a recording can stop and a later one start against the same
// publish session.
type videoProducer struct {
	l *Listener

	mu      sync.Mutex
	sink    session.VideoConsumer
	running bool
}

func (p *videoProducer) Start() {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	p.l.log.Debug("video producer started")
}

func (p *videoProducer) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.l.log.Debug("video producer stopped")
}

func (p *videoProducer) Size() media.Size { return p.l.size }

func (p *videoProducer) SetSink(sink session.VideoConsumer) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

func (p *videoProducer) deliver(s *media.Sample) {
	p.mu.Lock()
	sink, running := p.sink, p.running
	p.mu.Unlock()
	if running && sink != nil {
		sink.AppendVideoSample(s)
	}
}

// audioProducer is the audio counterpart of videoProducer.
type audioProducer struct {
	l *Listener

	mu      sync.Mutex
	sink    session.AudioConsumer
	running bool
}

func (p *audioProducer) Start() {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	p.l.log.Debug("audio producer started")
}

func (p *audioProducer) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.l.log.Debug("audio producer stopped")
}

func (p *audioProducer) SetSink(sink session.AudioConsumer) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

func (p *audioProducer) deliver(s *media.Sample) {
	p.mu.Lock()
	sink, running := p.sink, p.running
	p.mu.Unlock()
	if running && sink != nil {
		sink.AppendAudioSample(s)
	}
}
