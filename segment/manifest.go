package segment

import (
	"bytes"
	"fmt"
	"math"
	"time"
)

// manifestVersion is the HLS playlist version emitted; version 7 permits
// fMP4 segments referenced through EXT-X-MAP.
const manifestVersion = 7

// Manifest accumulates segment entries and renders the final index
// document. It is built incrementally as fragments arrive but only ever
// serialized once, after the fragment stream completes cleanly.
type Manifest struct {
	targetDuration time.Duration
	initURI        string
	entries        []manifestEntry
}

type manifestEntry struct {
	uri      string
	duration time.Duration
}

// NewManifest creates a manifest with the given preferred target duration.
func NewManifest(target time.Duration) *Manifest {
	return &Manifest{targetDuration: target}
}

// SetInitURI records the initialization fragment's filename, referenced
// via EXT-X-MAP.
func (m *Manifest) SetInitURI(uri string) {
	m.initURI = uri
}

// Append adds one media segment entry in playback order.
func (m *Manifest) Append(uri string, duration time.Duration) {
	m.entries = append(m.entries, manifestEntry{uri: uri, duration: duration})
}

// Len returns the number of media entries.
func (m *Manifest) Len() int { return len(m.entries) }

// Bytes renders the complete, terminated manifest document.
func (m *Manifest) Bytes() []byte {
	target := m.targetDuration
	for _, e := range m.entries {
		if e.duration > target {
			target = e.duration
		}
	}

	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n")
	fmt.Fprintf(&buf, "#EXT-X-VERSION:%d\n", manifestVersion)
	fmt.Fprintf(&buf, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(target.Seconds())))
	buf.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	buf.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	if m.initURI != "" {
		fmt.Fprintf(&buf, "#EXT-X-MAP:URI=%q\n", m.initURI)
	}
	for _, e := range m.entries {
		fmt.Fprintf(&buf, "#EXTINF:%.3f,\n", e.duration.Seconds())
		buf.WriteString(e.uri)
		buf.WriteByte('\n')
	}
	buf.WriteString("#EXT-X-ENDLIST\n")
	return buf.Bytes()
}
