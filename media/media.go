// Package media defines the buffer and sample types that flow through the
// capture session, from producers through fan-out to recording outputs.
package media

import "time"

// Size is a video frame geometry in pixels.
type Size struct {
	Width  int
	Height int
}

// PixelFormat identifies the layout of a raw video buffer's bytes.
type PixelFormat int

// Supported raw pixel formats.
const (
	FormatBGRA PixelFormat = iota
	FormatNV12
)

// Buffer is a single raw (unencoded) video frame handed to the session by a
// producer. PTS is measured on the producer's own clock from an arbitrary
// epoch; only deltas between buffers of the same producer are meaningful.
type Buffer struct {
	Data   []byte
	Size   Size
	Format PixelFormat
	PTS    time.Duration
}

// TrackKind distinguishes video and audio tracks on a writer.
type TrackKind int

// Track kinds.
const (
	TrackVideo TrackKind = iota
	TrackAudio
)

func (k TrackKind) String() string {
	switch k {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Sample is a single pre-encoded media unit (one video access unit or one
// audio frame). Duration may be zero for video samples whose duration is not
// declared by the producer; recording outputs in raw-buffer mode derive
// duration from PTS deltas instead.
type Sample struct {
	Kind     TrackKind
	Data     []byte
	PTS      time.Duration
	Duration time.Duration
	Keyframe bool
}

// TrackConfig carries the codec-level parameters a writer needs to set up
// one track. InitData holds any codec initialization payload (parameter
// sets, container headers) emitted ahead of media data.
type TrackConfig struct {
	Kind       TrackKind
	Codec      string
	Size       Size // video only
	SampleRate int  // audio only
	Channels   int  // audio only
	InitData   []byte
}
