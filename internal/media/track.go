package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one local capture. Disabling keeps the device open; Stop releases it
// and cannot be undone.
type Track struct {
	kind  Kind
	local webrtc.TrackLocal

	mu      sync.Mutex
	enabled bool
	stopped bool

	release  func()
	stopOnce sync.Once
}

// NewTrack wraps local. release frees the underlying device and runs once.
func NewTrack(kind Kind, local webrtc.TrackLocal, release func()) *Track {
	return &Track{kind: kind, local: local, enabled: true, release: release}
}

func (t *Track) Kind() Kind { return t.kind }

// Local is what gets attached to a peer connection.
func (t *Track) Local() webrtc.TrackLocal { return t.local }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled && !t.stopped
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
		if t.release != nil {
			t.release()
		}
	})
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Stream groups at most one audio and one video track.
type Stream struct {
	mu    sync.Mutex
	audio *Track
	video *Track
}

func (s *Stream) Audio() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

func (s *Stream) Video() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}

// Tracks lists the attached tracks, audio first.
func (s *Stream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Track
	if s.audio != nil {
		out = append(out, s.audio)
	}
	if s.video != nil {
		out = append(out, s.video)
	}
	return out
}

func (s *Stream) swapVideo(t *Track) *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.video
	s.video = t
	return old
}
