package record

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avkit/reel/media"
)

// FileWriter is a Writer that appends media payloads to one contiguous
// file. Track init payloads are written ahead of media data. It performs
// no container muxing of its own; the samples handed to it are expected to
// already be in a self-describing stream format (for example MPEG-TS from
// a passthrough producer).
type FileWriter struct {
	path   string
	f      *os.File
	w      *bufio.Writer
	status Status
	err    error
	tracks []*fileTrack
}

// NewFileWriter creates the destination file, creating parent directories
// as needed.
func NewFileWriter(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("record: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("record: create output file: %w", err)
	}
	return &FileWriter{
		path:   path,
		f:      f,
		w:      bufio.NewWriter(f),
		status: StatusWriting,
	}, nil
}

type fileTrack struct {
	fw  *FileWriter
	cfg media.TrackConfig
}

func (t *fileTrack) Ready() bool { return t.fw.status == StatusWriting }

func (t *fileTrack) AppendBuffer(b *media.Buffer) error {
	return t.fw.write(b.Data)
}

func (t *fileTrack) AppendSample(s *media.Sample) error {
	return t.fw.write(s.Data)
}

// AddVideoTrack implements Writer.
func (fw *FileWriter) AddVideoTrack(cfg media.TrackConfig) (Track, error) {
	return fw.addTrack(cfg)
}

// AddAudioTrack implements Writer.
func (fw *FileWriter) AddAudioTrack(cfg media.TrackConfig) (Track, error) {
	return fw.addTrack(cfg)
}

func (fw *FileWriter) addTrack(cfg media.TrackConfig) (Track, error) {
	if fw.status != StatusWriting {
		return nil, ErrCannotAddTrack
	}
	if len(cfg.InitData) > 0 {
		if err := fw.write(cfg.InitData); err != nil {
			return nil, err
		}
	}
	t := &fileTrack{fw: fw, cfg: cfg}
	fw.tracks = append(fw.tracks, t)
	return t, nil
}

// StartSession implements Writer. A contiguous file has no session
// structure to record; timestamps live inside the stream payload.
func (fw *FileWriter) StartSession(time.Duration) {}

// EndSession implements Writer.
func (fw *FileWriter) EndSession(time.Duration) {}

func (fw *FileWriter) write(p []byte) error {
	if fw.status == StatusFailed {
		return fw.err
	}
	if fw.status != StatusWriting {
		return ErrWriterFailed
	}
	if _, err := fw.w.Write(p); err != nil {
		fw.status = StatusFailed
		fw.err = err
		return err
	}
	return nil
}

// Finalize flushes and closes the file.
func (fw *FileWriter) Finalize() (Info, error) {
	if fw.status != StatusWriting {
		return Info{}, fw.errOr(ErrWriterFailed)
	}
	if err := fw.w.Flush(); err != nil {
		fw.status = StatusFailed
		fw.err = err
		fw.f.Close()
		return Info{}, err
	}
	if err := fw.f.Close(); err != nil {
		fw.status = StatusFailed
		fw.err = err
		return Info{}, err
	}
	fw.status = StatusDone
	return Info{Location: fw.path}, nil
}

// Cancel closes and removes the partial file. Idempotent.
func (fw *FileWriter) Cancel() {
	if fw.status == StatusDone || fw.status == StatusCancelled {
		return
	}
	fw.status = StatusCancelled
	fw.f.Close()
	os.Remove(fw.path)
}

// Status implements Writer.
func (fw *FileWriter) Status() Status { return fw.status }

// Err implements Writer.
func (fw *FileWriter) Err() error { return fw.err }

func (fw *FileWriter) errOr(fallback error) error {
	if fw.err != nil {
		return fw.err
	}
	return fallback
}
