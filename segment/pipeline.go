package segment

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Pipeline consumes an ordered fragment stream and performs two folds over
// it: each fragment's payload is written to its own deterministically named
// file, and fragment metadata accumulates into a manifest that is
// serialized exactly once, after the stream completes cleanly. A stream
// that ends in failure or abort produces no manifest and no further
// segment writes; files already written are left in place.
type Pipeline struct {
	cfg   Config
	log   *slog.Logger
	in    <-chan Fragment
	abort <-chan struct{}
	done  chan error
}

// NewPipeline creates a pipeline reading fragments from in until it is
// closed, or until abort is closed. Call Run on its own goroutine.
func NewPipeline(cfg Config, in <-chan Fragment, abort <-chan struct{}) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:   cfg,
		log:   cfg.Log.With("component", "segment-pipeline", "dir", cfg.Dir),
		in:    in,
		abort: abort,
		done:  make(chan error, 1),
	}
}

// Done returns the completion channel; exactly one result is delivered
// when the pipeline stops consuming. On failure the result is available
// while the input channel is still open, so the producing writer can
// observe the failure before it finalizes.
func (p *Pipeline) Done() <-chan error { return p.done }

// Run processes the fragment stream to completion. The result is
// delivered as soon as consumption stops; the input channel is then
// drained until closed so the producing writer can never stall on a send.
func (p *Pipeline) Run() {
	err := p.consume()
	if err != nil {
		p.log.Warn("segment pipeline failed", "error", err)
	}
	p.done <- err
	for range p.in {
	}
}

func (p *Pipeline) consume() error {
	if err := os.MkdirAll(p.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("segment: create dir: %w", err)
	}

	manifest := NewManifest(p.cfg.Interval)
	next := 0

	for {
		select {
		case <-p.abort:
			return ErrAborted
		case frag, ok := <-p.in:
			if !ok {
				// Cancel closes the abort and input channels together and
				// the select picks between them at random; an abort must
				// win over a simultaneous close or a cancelled recording
				// could still persist its manifest.
				select {
				case <-p.abort:
					return ErrAborted
				default:
				}
				return p.writeManifest(manifest)
			}
			if frag.Seq != next {
				return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, frag.Seq, next)
			}
			if frag.Init != (frag.Seq == 0) {
				return fmt.Errorf("%w: init flag on fragment %d", ErrOutOfOrder, frag.Seq)
			}
			next++

			name := p.cfg.FragmentName(frag.Seq)
			if err := p.writeFragment(name, frag.Data); err != nil {
				return err
			}

			if frag.Init {
				manifest.SetInitURI(name)
			} else if frag.Report != nil {
				manifest.Append(name, frag.Report.Duration)
			} else {
				manifest.Append(name, 0)
			}
		}
	}
}

func (p *Pipeline) writeFragment(name string, data []byte) error {
	path := filepath.Join(p.cfg.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("segment: write %s: %w", name, err)
	}
	p.log.Debug("segment written", "name", name, "bytes", len(data))
	return nil
}

// writeManifest persists the final index document. Called once, only after
// the fragment stream has completed without error.
func (p *Pipeline) writeManifest(m *Manifest) error {
	path := p.cfg.ManifestPath()
	if err := os.WriteFile(path, m.Bytes(), 0o644); err != nil {
		return fmt.Errorf("segment: write manifest: %w", err)
	}
	p.log.Info("manifest written", "path", path, "segments", m.Len())
	return nil
}
