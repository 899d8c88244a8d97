// Command reel records an SRT publish stream to disk: either a set of
// transport stream segments with an HLS index manifest, or one contiguous
// file. Publish with e.g.
//
//	ffmpeg -re -i input.mp4 -c copy -f mpegts srt://localhost:9000
//
// and stop with SIGINT; the recording is finished cleanly and the
// manifest written before exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	srtingest "github.com/avkit/reel/ingest/srt"
	"github.com/avkit/reel/media"
	"github.com/avkit/reel/record"
	"github.com/avkit/reel/segment"
	"github.com/avkit/reel/session"
)

var version = "dev"

func main() {
	listenAddr := flag.String("listen", ":9000", "SRT listen address")
	outDir := flag.String("out", "recording", "output directory (segment mode)")
	outFile := flag.String("file", "", "output file path (contiguous mode, disables segmenting)")
	interval := flag.Duration("interval", segment.DefaultInterval, "preferred segment duration")
	withAudio := flag.Bool("audio", true, "record the audio track when present")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.Info("reel starting", "version", version, "listen", *listenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, *listenAddr, *outDir, *outFile, *interval, *withAudio); err != nil {
		slog.Error("reel failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, listenAddr, outDir, outFile string, interval time.Duration, withAudio bool) error {
	listener := srtingest.NewListener(srtingest.Options{Addr: listenAddr})

	sess := session.New(session.Options{})
	defer sess.Close()
	sess.SetVideoProducer(listener.VideoProducer())
	sess.SetAudioProducer(listener.AudioProducer())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listener.Serve(ctx)
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-listener.Ready():
		}

		opts := session.RecordingOptions{
			Destination: outDir,
			Video: media.TrackConfig{
				Codec:    "h264",
				InitData: listener.InitData(),
			},
			Segment: &segment.Config{Interval: interval},
		}
		if outFile != "" {
			opts.Destination = outFile
			opts.Segment = nil
		}
		if withAudio {
			opts.Audio = &media.TrackConfig{Codec: "aac"}
		}

		handle, err := session.NewRecorder(sess).Begin(opts)
		if err != nil {
			return err
		}
		slog.Info("recording", "location", handle.Location())
		handle.Resume()

		select {
		case err := <-handle.Err():
			return fmt.Errorf("recording failed: %w", err)
		case <-ctx.Done():
		}

		done := make(chan error, 1)
		handle.Finish(func(info record.Info, err error) {
			if err == nil {
				slog.Info("recording complete",
					"location", info.Location,
					"duration", info.Duration.Round(time.Millisecond))
			}
			done <- err
		})
		return <-done
	})

	return g.Wait()
}
