package session

import (
	"sync"

	"github.com/avkit/reel/media"
)

// Converter is the shared pixel conversion context applied to one-shot
// captures. One Converter is created lazily per session and used
// concurrently by every capture request, so implementations must be safe
// for concurrent use.
type Converter interface {
	Convert(b *media.Buffer) *media.Buffer
}

// convert runs b through the session's shared converter, creating it on
// first use.
func (s *Session) convert(b *media.Buffer) *media.Buffer {
	s.convOnce.Do(func() {
		if s.convFactory != nil {
			s.converter = s.convFactory()
		}
	})
	if s.converter == nil {
		return b
	}
	return s.converter.Convert(b)
}

// Capture is the cancellation handle for a continuous pixel buffer
// capture. Cancel is idempotent.
type Capture struct {
	s    *Session
	c    *pixelCapture
	once sync.Once
}

// Cancel deregisters the capture; the handler will not be invoked again
// once any in-flight fan-out completes.
func (c *Capture) Cancel() {
	c.once.Do(func() {
		c.s.removeVideoConsumer(c.c)
	})
}

// pixelCapture is a continuous video consumer invoking a caller handler
// for every raw buffer.
type pixelCapture struct {
	fn func(*media.Buffer)
}

func (p *pixelCapture) AppendVideoBuffer(b *media.Buffer) { p.fn(b) }
func (p *pixelCapture) AppendVideoSample(*media.Sample)   {}

// CapturePixelBuffers registers a continuous video consumer that invokes
// fn for every raw video buffer until the returned handle is cancelled.
// Buffers are delivered unconverted, on the producer's goroutine.
func (s *Session) CapturePixelBuffers(fn func(*media.Buffer)) *Capture {
	c := &pixelCapture{fn: fn}
	s.addVideoConsumer(c)
	return &Capture{s: s, c: c}
}

// oneShotCapture captures exactly the next raw buffer, converts it through
// the session's shared converter, invokes the handler once, and
// deregisters itself.
type oneShotCapture struct {
	s    *Session
	fn   func(*media.Buffer)
	once sync.Once
}

func (o *oneShotCapture) AppendVideoBuffer(b *media.Buffer) {
	o.once.Do(func() {
		o.fn(o.s.convert(b))
		o.s.removeVideoConsumer(o)
	})
}

func (o *oneShotCapture) AppendVideoSample(*media.Sample) {}

// TakePixelBuffer registers a one-shot consumer for the next video buffer.
// fn is invoked exactly once, with the converted buffer, on the producer's
// goroutine.
func (s *Session) TakePixelBuffer(fn func(*media.Buffer)) {
	o := &oneShotCapture{s: s, fn: fn}
	s.addVideoConsumer(o)
}
