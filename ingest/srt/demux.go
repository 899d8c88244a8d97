package srt

import (
	"errors"
	"io"
	"time"

	"github.com/avkit/reel/media"
	"github.com/avkit/reel/mpegts"
)

// ptsToDuration converts a 90 kHz transport timestamp to a Duration.
func ptsToDuration(pts int64) time.Duration {
	return time.Duration(pts) * time.Second / 90000
}

// emitter delays each sample by one unit so its duration can be derived
// from the PTS delta to its successor, the only duration signal a
// transport stream carries.
type emitter struct {
	prev      *media.Sample
	lastDelta time.Duration
	deliver   func(*media.Sample)
}

func (e *emitter) push(s *media.Sample) {
	if e.prev != nil {
		if d := s.PTS - e.prev.PTS; d > 0 {
			e.prev.Duration = d
			e.lastDelta = d
		}
		e.deliver(e.prev)
	}
	e.prev = s
}

// flush emits the final held sample, reusing the last observed delta as
// its duration.
func (e *emitter) flush() {
	if e.prev == nil {
		return
	}
	e.prev.Duration = e.lastDelta
	e.deliver(e.prev)
	e.prev = nil
}

// demux reads the published transport stream to completion, delivering
// video and audio samples to the listener's producers.
func (l *Listener) demux(r io.Reader) {
	d := mpegts.NewDemuxer(r)

	video := &emitter{deliver: l.video.deliver}
	audio := &emitter{deliver: l.audio.deliver}

	for {
		unit, err := d.NextUnit()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.log.Debug("demux error", "error", err)
			}
			break
		}
		if init := d.InitSection(); init != nil {
			l.setReady(init)
		}
		if unit.PTS == mpegts.NoTimestamp {
			continue
		}

		switch {
		case unit.Type.Video():
			video.push(&media.Sample{
				Kind:     media.TrackVideo,
				Data:     unit.Raw,
				PTS:      ptsToDuration(unit.PTS),
				Keyframe: unit.RandomAccess || isKeyframe(unit.Type, unit.Payload),
			})
		case unit.Type.Audio():
			audio.push(&media.Sample{
				Kind: media.TrackAudio,
				Data: unit.Raw,
				PTS:  ptsToDuration(unit.PTS),
			})
		}
	}

	video.flush()
	audio.flush()
}

// isKeyframe scans an Annex B elementary payload for an IDR (H.264) or
// IRAP (H.265) NAL unit, as a fallback for muxers that do not set the
// random access indicator.
func isKeyframe(st mpegts.StreamType, es []byte) bool {
	for i := 0; i+3 < len(es); i++ {
		if es[i] != 0 || es[i+1] != 0 {
			continue
		}
		var off int
		switch {
		case es[i+2] == 1:
			off = i + 3
		case es[i+2] == 0 && i+4 < len(es) && es[i+3] == 1:
			off = i + 4
		default:
			continue
		}
		if off >= len(es) {
			return false
		}
		switch st {
		case mpegts.StreamTypeH264:
			if es[off]&0x1F == 5 {
				return true
			}
		case mpegts.StreamTypeH265:
			if t := es[off] >> 1 & 0x3F; t >= 16 && t <= 23 {
				return true
			}
		}
		i = off
	}
	return false
}
