// Package session implements the media capture session: it couples at most
// one video producer and one audio producer with any number of concurrently
// registered consumers (recording outputs, one-shot and continuous pixel
// buffer captures), fanning every delivered buffer out to all of them.
package session

import "github.com/avkit/reel/media"

// VideoConsumer receives every video buffer or pre-encoded video sample
// delivered by the session's active video producer. Implementations must not
// block the producer thread; delivery is fire-and-forget.
type VideoConsumer interface {
	AppendVideoBuffer(b *media.Buffer)
	AppendVideoSample(s *media.Sample)
}

// AudioConsumer receives every audio sample delivered by the session's
// active audio producer.
type AudioConsumer interface {
	AppendAudioSample(s *media.Sample)
}

// VideoProducer is a source of video buffers or samples with an externally
// controlled lifecycle. The session injects itself as the sink before Start;
// a producer delivers frames on its own goroutine until Stop.
type VideoProducer interface {
	Start()
	Stop()
	Size() media.Size
	SetSink(sink VideoConsumer)
}

// AudioProducer is the audio counterpart of VideoProducer. Audio producers
// deliver pre-encoded samples only.
type AudioProducer interface {
	Start()
	Stop()
	SetSink(sink AudioConsumer)
}
