// Package srt adapts an SRT publish connection into the session's video
// and audio producers. The published MPEG-TS stream is demuxed for
// timestamps and keyframe boundaries, but the original transport packets
// are passed through as the sample payloads so recordings stay valid
// transport streams.
package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	srtgo "github.com/zsiec/srtgo"

	"github.com/avkit/reel/media"
	"github.com/avkit/reel/session"
)

// readBufferSize is the read buffer for SRT socket reads. 1316 bytes is
// 7 transport packets, the standard SRT payload size.
const readBufferSize = 1316 * 10

// latencyNs is the SRT latency setting in nanoseconds (120ms).
const latencyNs = 120_000_000

// Options configures an ingest listener.
type Options struct {
	// Addr is the SRT listen address, e.g. ":9000".
	Addr string

	// Size is the geometry advertised by the video producer. The
	// passthrough pipeline never inspects pixels, so this is metadata
	// only; defaults to 1920x1080.
	Size media.Size

	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Listener accepts one SRT publish connection at a time and feeds its
// demuxed stream to the session producers it exposes. The producers' Start
// and Stop gate delivery only; the socket lifecycle belongs to Serve.
type Listener struct {
	log  *slog.Logger
	addr string
	size media.Size

	video *videoProducer
	audio *audioProducer

	busy atomic.Bool

	mu        sync.Mutex
	initData  []byte
	ready     chan struct{}
	readyOnce sync.Once
}

// NewListener creates a Listener. Serve must be called to accept traffic.
func NewListener(opts Options) *Listener {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	size := opts.Size
	if size == (media.Size{}) {
		size = media.Size{Width: 1920, Height: 1080}
	}
	l := &Listener{
		log:   log.With("component", "srt-listener"),
		addr:  opts.Addr,
		size:  size,
		ready: make(chan struct{}),
	}
	l.video = &videoProducer{l: l}
	l.audio = &audioProducer{l: l}
	return l
}

// VideoProducer returns the session-facing video producer.
func (l *Listener) VideoProducer() session.VideoProducer { return l.video }

// AudioProducer returns the session-facing audio producer.
func (l *Listener) AudioProducer() session.AudioProducer { return l.audio }

// Ready is closed once the published stream's PAT and PMT have been seen,
// at which point InitData returns the stream's initialization packets.
func (l *Listener) Ready() <-chan struct{} { return l.ready }

// InitData returns the raw PAT and PMT packets of the published stream,
// for use as track initialization payload. Nil before Ready.
func (l *Listener) InitData() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initData
}

func (l *Listener) setReady(init []byte) {
	l.mu.Lock()
	l.initData = init
	l.mu.Unlock()
	l.readyOnce.Do(func() { close(l.ready) })
}

// Serve accepts SRT publish connections until ctx is cancelled. A second
// connection arriving while one is active is closed immediately.
func (l *Listener) Serve(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs

	ln, err := srtgo.Listen(l.addr, cfg)
	if err != nil {
		return fmt.Errorf("srt: listen on %s: %w", l.addr, err)
	}
	l.log.Info("listening", "addr", l.addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Warn("accept error", "error", err)
			continue
		}
		if !l.busy.CompareAndSwap(false, true) {
			l.log.Warn("rejecting publish, stream already active", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}
		l.log.Info("publish", "remote", conn.RemoteAddr(), "stream_id", conn.StreamID())
		go func() {
			defer l.busy.Store(false)
			l.handleConnection(ctx, conn)
		}()
	}
}

func (l *Listener) handleConnection(ctx context.Context, conn *srtgo.Conn) {
	defer conn.Close()

	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		buf := make([]byte, readBufferSize)
		for ctx.Err() == nil {
			n, err := conn.Read(buf)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					l.log.Debug("read error", "error", err)
				}
				return
			}
			if _, err := pw.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	l.demux(pr)
	l.log.Info("connection closed", "remote", conn.RemoteAddr())
}
