package segment

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avkit/reel/media"
	"github.com/avkit/reel/record"
)

func keySample(pts time.Duration, data string) *media.Sample {
	return &media.Sample{
		Kind:     media.TrackVideo,
		Data:     []byte(data),
		PTS:      pts,
		Duration: 500 * time.Millisecond,
		Keyframe: true,
	}
}

func deltaSample(pts time.Duration, data string) *media.Sample {
	s := keySample(pts, data)
	s.Keyframe = false
	return s
}

func TestWriterCutsAtKeyframeAfterInterval(t *testing.T) {
	t.Parallel()

	cfg := Config{Dir: t.TempDir(), Interval: time.Second}
	w, err := NewRecording(cfg)()
	if err != nil {
		t.Fatal(err)
	}

	track, err := w.AddVideoTrack(media.TrackConfig{Kind: media.TrackVideo, InitData: []byte("INIT")})
	if err != nil {
		t.Fatal(err)
	}
	w.StartSession(0)

	// Two 500ms samples fill the interval; the delta sample at 1s must not
	// cut, the keyframe at 1.5s must.
	for _, s := range []*media.Sample{
		keySample(0, "a"),
		deltaSample(500*time.Millisecond, "b"),
		deltaSample(1*time.Second, "c"),
		keySample(1500*time.Millisecond, "d"),
	} {
		if !track.Ready() {
			t.Fatal("track not ready")
		}
		if err := track.AppendSample(s); err != nil {
			t.Fatal(err)
		}
	}

	info, err := w.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if info.Location != cfg.ManifestPath() {
		t.Fatalf("location = %q, want manifest path %q", info.Location, cfg.ManifestPath())
	}
	if w.Status() != record.StatusDone {
		t.Fatalf("status = %v, want done", w.Status())
	}

	read := func(seq int) string {
		data, err := os.ReadFile(filepath.Join(cfg.Dir, cfg.FragmentName(seq)))
		if err != nil {
			t.Fatalf("segment %d: %v", seq, err)
		}
		return string(data)
	}
	if got := read(0); got != "INIT" {
		t.Fatalf("init segment = %q", got)
	}
	if got := read(1); got != "abc" {
		t.Fatalf("first media segment = %q, want samples up to the cut", got)
	}
	if got := read(2); got != "d" {
		t.Fatalf("second media segment = %q", got)
	}

	manifest, err := os.ReadFile(cfg.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	text := string(manifest)
	if !strings.Contains(text, "#EXTINF:1.500,") {
		t.Errorf("first segment duration missing:\n%s", text)
	}
	if !strings.Contains(text, "#EXT-X-ENDLIST") {
		t.Errorf("manifest not terminated:\n%s", text)
	}
}

func TestWriterAudioInterleavesWithoutCutting(t *testing.T) {
	t.Parallel()

	cfg := Config{Dir: t.TempDir(), Interval: time.Second}
	w, err := NewRecording(cfg)()
	if err != nil {
		t.Fatal(err)
	}
	video, err := w.AddVideoTrack(media.TrackConfig{Kind: media.TrackVideo})
	if err != nil {
		t.Fatal(err)
	}
	audio, err := w.AddAudioTrack(media.TrackConfig{Kind: media.TrackAudio})
	if err != nil {
		t.Fatal(err)
	}
	w.StartSession(0)

	if err := video.AppendSample(keySample(0, "v")); err != nil {
		t.Fatal(err)
	}
	// Audio longer than the interval must not trigger a cut of its own.
	if err := audio.AppendSample(&media.Sample{
		Kind:     media.TrackAudio,
		Data:     []byte("a"),
		PTS:      0,
		Duration: 2 * time.Second,
	}); err != nil {
		t.Fatal(err)
	}
	if err := video.AppendSample(deltaSample(500*time.Millisecond, "w")); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Finalize(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Dir, cfg.FragmentName(1)))
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != "vaw" {
		t.Fatalf("segment = %q, want interleaved single fragment", got)
	}
}

func TestWriterCancelLeavesNoManifest(t *testing.T) {
	t.Parallel()

	cfg := Config{Dir: t.TempDir()}
	w, err := NewRecording(cfg)()
	if err != nil {
		t.Fatal(err)
	}
	track, err := w.AddVideoTrack(media.TrackConfig{Kind: media.TrackVideo})
	if err != nil {
		t.Fatal(err)
	}
	w.StartSession(0)
	if err := track.AppendSample(keySample(0, "x")); err != nil {
		t.Fatal(err)
	}

	w.Cancel()
	w.Cancel() // idempotent

	if w.Status() != record.StatusCancelled {
		t.Fatalf("status = %v, want cancelled", w.Status())
	}
	if err := track.AppendSample(keySample(time.Second, "y")); err == nil {
		t.Fatal("append succeeded after cancel")
	}

	// The pipeline observes the abort asynchronously; poll for quiescence.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(cfg.ManifestPath()); os.IsNotExist(err) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := os.Stat(cfg.ManifestPath()); !os.IsNotExist(err) {
		t.Fatal("cancelled recording produced a manifest")
	}
}

func TestWriterBackpressureHoldsFragments(t *testing.T) {
	t.Parallel()

	// Depth-1 channel with no running pipeline: the first cut fills the
	// channel, the second parks in the pending list and flips Ready off.
	cfg := Config{Dir: t.TempDir(), Interval: time.Second, ChannelDepth: 1}.withDefaults()
	w := newWriter(cfg)

	track, err := w.AddVideoTrack(media.TrackConfig{Kind: media.TrackVideo})
	if err != nil {
		t.Fatal(err)
	}
	w.StartSession(0) // init fragment occupies the only slot

	if track.Ready() {
		t.Fatal("track ready with a full fragment channel")
	}

	// Fill one interval, then cut at the next keyframe. The cut fragment
	// cannot be sent while init still occupies the channel, so it parks in
	// the pending list.
	if err := track.AppendSample(keySample(0, "a")); err != nil {
		t.Fatal(err)
	}
	if err := track.AppendSample(deltaSample(500*time.Millisecond, "b")); err != nil {
		t.Fatal(err)
	}
	if err := track.AppendSample(keySample(1500*time.Millisecond, "c")); err != nil {
		t.Fatal(err)
	}
	if track.Ready() {
		t.Fatal("track ready while a cut fragment is parked")
	}

	frag := <-w.out
	if !frag.Init {
		t.Fatalf("expected init fragment first, got seq %d", frag.Seq)
	}

	// The next cut retries the parked fragment ahead of the new one.
	if err := track.AppendSample(deltaSample(2*time.Second, "d")); err != nil {
		t.Fatal(err)
	}
	if err := track.AppendSample(keySample(2500*time.Millisecond, "e")); err != nil {
		t.Fatal(err)
	}
	frag = <-w.out
	if frag.Seq != 1 || string(frag.Data) != "ab" {
		t.Fatalf("fragment = %+v, want seq 1 payload %q", frag, "ab")
	}
	if frag.Report == nil || frag.Report.Duration != time.Second {
		t.Fatalf("fragment report = %+v, want 1s", frag.Report)
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Dir: "/tmp/x"}.withDefaults()
	if cfg.Prefix != DefaultPrefix || cfg.Ext != DefaultExt {
		t.Fatalf("naming defaults = %q %q", cfg.Prefix, cfg.Ext)
	}
	if cfg.Interval != DefaultInterval {
		t.Fatalf("interval default = %v", cfg.Interval)
	}
	if got := cfg.FragmentName(3); got != "media3.ts" {
		t.Fatalf("fragment name = %q", got)
	}
	if got := cfg.ManifestPath(); got != filepath.Join("/tmp/x", DefaultManifestName) {
		t.Fatalf("manifest path = %q", got)
	}
}

func TestWriterObservesPipelineFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "occupied")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	// The destination directory cannot be created, so the pipeline dies on
	// startup. The writer must flip to failed on the next status check
	// instead of accepting media until finalize.
	w, err := NewRecording(Config{Dir: filepath.Join(blocker, "sub")})()
	if err != nil {
		t.Fatal(err)
	}
	track, err := w.AddVideoTrack(media.TrackConfig{Kind: media.TrackVideo})
	if err != nil {
		t.Fatal(err)
	}
	w.StartSession(0)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && w.Status() != record.StatusFailed {
		time.Sleep(time.Millisecond)
	}
	if got := w.Status(); got != record.StatusFailed {
		t.Fatalf("status = %v, want failed while appends continue", got)
	}
	if w.Err() == nil {
		t.Fatal("failed writer carries no error")
	}
	if track.Ready() {
		t.Fatal("track ready on a failed writer")
	}
	if err := track.AppendSample(keySample(0, "x")); err == nil {
		t.Fatal("append accepted after pipeline failure")
	}
	if _, err := w.Finalize(); err == nil {
		t.Fatal("finalize succeeded after pipeline failure")
	}
	w.Cancel() // releases the draining pipeline
}

func TestWriterFinalizeAfterCancelFails(t *testing.T) {
	t.Parallel()

	w, err := NewRecording(Config{Dir: t.TempDir()})()
	if err != nil {
		t.Fatal(err)
	}
	w.Cancel()
	if _, err := w.Finalize(); !errors.Is(err, record.ErrWriterFailed) {
		t.Fatalf("finalize after cancel err = %v", err)
	}
}
