package session

import "sync"

// Registry holds the ordered fan-out lists of active video and audio
// consumers. Consumers are compared by identity: two structurally identical
// consumers are distinct entries, and adding the same consumer twice is a
// no-op. Add and remove report edge transitions (empty to non-empty and
// back) so callers can start and stop the underlying producer exactly once
// no matter how calls interleave across goroutines.
//
// The mutex is held only for the read-modify-write of the slices, never
// across consumer callbacks; fan-out callers take a snapshot and release
// the lock before invoking anything, so a consumer that deregisters itself
// during its own callback cannot deadlock.
type Registry struct {
	mu    sync.Mutex
	video []VideoConsumer
	audio []AudioConsumer
}

// AddVideoConsumer appends c to the video list if absent. Returns true iff
// the list transitioned from empty to non-empty.
func (r *Registry) AddVideoConsumer(c VideoConsumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.video {
		if existing == c {
			return false
		}
	}
	r.video = append(r.video, c)
	return len(r.video) == 1
}

// RemoveVideoConsumer removes c by identity if present. Returns true iff
// the list transitioned from non-empty to empty. Removing an absent
// consumer is a no-op reporting no transition.
func (r *Registry) RemoveVideoConsumer(c VideoConsumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.video {
		if existing == c {
			r.video = append(r.video[:i], r.video[i+1:]...)
			return len(r.video) == 0
		}
	}
	return false
}

// AddAudioConsumer appends c to the audio list if absent. Returns true iff
// the list transitioned from empty to non-empty.
func (r *Registry) AddAudioConsumer(c AudioConsumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.audio {
		if existing == c {
			return false
		}
	}
	r.audio = append(r.audio, c)
	return len(r.audio) == 1
}

// RemoveAudioConsumer removes c by identity if present. Returns true iff
// the list transitioned from non-empty to empty.
func (r *Registry) RemoveAudioConsumer(c AudioConsumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.audio {
		if existing == c {
			r.audio = append(r.audio[:i], r.audio[i+1:]...)
			return len(r.audio) == 0
		}
	}
	return false
}

// VideoConsumers returns a snapshot of the video list in registration order.
func (r *Registry) VideoConsumers() []VideoConsumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]VideoConsumer, len(r.video))
	copy(out, r.video)
	return out
}

// AudioConsumers returns a snapshot of the audio list in registration order.
func (r *Registry) AudioConsumers() []AudioConsumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AudioConsumer, len(r.audio))
	copy(out, r.audio)
	return out
}

// VideoConsumerCount returns the current number of video consumers.
func (r *Registry) VideoConsumerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.video)
}

// AudioConsumerCount returns the current number of audio consumers.
func (r *Registry) AudioConsumerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.audio)
}
