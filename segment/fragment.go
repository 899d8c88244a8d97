// Package segment implements streaming-mode recording: a fragmenting
// writer that cuts the appended media stream into ordered fragments, and a
// pipeline that persists each fragment to its own file and folds fragment
// metadata into an index manifest written once on clean completion.
package segment

import "time"

// Fragment is one independently persisted chunk of a streaming-mode
// recording. Sequence numbers are zero-based and strictly increasing; the
// fragment at sequence 0 is always the initialization fragment and carries
// no duration.
type Fragment struct {
	Seq  int
	Data []byte
	Init bool

	// Report carries manifest metadata for media fragments; nil on the
	// initialization fragment.
	Report *Report
}

// Report is the per-fragment metadata folded into the manifest.
type Report struct {
	Duration time.Duration
}
