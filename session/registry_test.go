package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/avkit/reel/media"
)

// nullConsumer is non-zero-size so each &nullConsumer{} is a distinct
// pointer; zero-size allocations may share an address, collapsing the
// distinct identities these tests rely on.
type nullConsumer struct{ _ byte }

func (nullConsumer) AppendVideoBuffer(*media.Buffer) {}
func (nullConsumer) AppendVideoSample(*media.Sample) {}
func (nullConsumer) AppendAudioSample(*media.Sample) {}

func TestRegistryEdgeTransitions(t *testing.T) {
	t.Parallel()

	var r Registry
	a, b := &nullConsumer{}, &nullConsumer{}

	if !r.AddVideoConsumer(a) {
		t.Fatal("first add did not report empty-to-non-empty")
	}
	if r.AddVideoConsumer(b) {
		t.Fatal("second add reported a transition")
	}
	if r.AddVideoConsumer(a) {
		t.Fatal("duplicate add reported a transition")
	}
	if got := r.VideoConsumerCount(); got != 2 {
		t.Fatalf("count = %d, want 2 (duplicate must not re-register)", got)
	}

	if r.RemoveVideoConsumer(a) {
		t.Fatal("removing one of two reported non-empty-to-empty")
	}
	if r.RemoveVideoConsumer(a) {
		t.Fatal("removing an absent consumer reported a transition")
	}
	if !r.RemoveVideoConsumer(b) {
		t.Fatal("removing the last consumer did not report the transition")
	}
}

func TestRegistryIdentityNotEquality(t *testing.T) {
	t.Parallel()

	// Two structurally identical consumers are distinct registry entries.
	var r Registry
	a, b := &nullConsumer{}, &nullConsumer{}
	r.AddVideoConsumer(a)
	r.AddVideoConsumer(b)
	if got := r.VideoConsumerCount(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	r.RemoveVideoConsumer(a)
	if got := r.VideoConsumerCount(); got != 1 {
		t.Fatalf("count after removing a = %d, want 1", got)
	}
}

func TestRegistrySnapshotOrder(t *testing.T) {
	t.Parallel()

	var r Registry
	consumers := []*nullConsumer{{}, {}, {}}
	for _, c := range consumers {
		r.AddVideoConsumer(c)
	}
	snap := r.VideoConsumers()
	if len(snap) != len(consumers) {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	for i, c := range consumers {
		if snap[i] != VideoConsumer(c) {
			t.Fatalf("snapshot[%d] out of registration order", i)
		}
	}
}

func TestRegistryTransitionsBalanceUnderConcurrency(t *testing.T) {
	t.Parallel()

	var (
		r       Registry
		emptied atomic.Int64
		filled  atomic.Int64
		wg      sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &nullConsumer{}
			for i := 0; i < 200; i++ {
				if r.AddVideoConsumer(c) {
					filled.Add(1)
				}
				if r.RemoveVideoConsumer(c) {
					emptied.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// Every goroutine removed what it added, so the registry ends empty and
	// the start/stop edges the session would drive are balanced.
	if got := r.VideoConsumerCount(); got != 0 {
		t.Fatalf("registry not empty: %d", got)
	}
	if filled.Load() != emptied.Load() {
		t.Fatalf("unbalanced transitions: %d fills, %d empties", filled.Load(), emptied.Load())
	}
	if filled.Load() == 0 {
		t.Fatal("no transitions observed")
	}
}

func TestRegistryAudioList(t *testing.T) {
	t.Parallel()

	var r Registry
	a, b := &nullConsumer{}, &nullConsumer{}
	if !r.AddAudioConsumer(a) {
		t.Fatal("first audio add did not report the transition")
	}
	if r.AddAudioConsumer(b) {
		t.Fatal("second audio add reported a transition")
	}
	if r.RemoveAudioConsumer(b) {
		t.Fatal("removing one of two audio consumers reported the transition")
	}
	if !r.RemoveAudioConsumer(a) {
		t.Fatal("removing the last audio consumer did not report the transition")
	}
}
