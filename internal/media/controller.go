package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrStreamHeld   = errors.New("a local stream is already held")
	ErrNoAudioTrack = errors.New("stream has no audio track")
)

type Constraints struct {
	Audio bool
	Video bool
}

// Device opens capture tracks. Errors mean the hardware is missing or access was denied.
type Device interface {
	OpenAudio(ctx context.Context) (*Track, error)
	OpenVideo(ctx context.Context) (*Track, error)
}

// Controller owns at most one local stream at a time.
type Controller struct {
	dev Device

	mu   sync.Mutex
	held *Stream
}

func NewController(dev Device) *Controller {
	return &Controller{dev: dev}
}

// Acquire opens the tracks asked for. On any failure nothing stays open and
// the error wraps domain.ErrMediaUnavailable.
func (c *Controller) Acquire(ctx context.Context, want Constraints) (*Stream, error) {
	c.mu.Lock()
	if c.held != nil {
		c.mu.Unlock()
		return nil, ErrStreamHeld
	}
	s := &Stream{}
	c.held = s
	c.mu.Unlock()

	fail := func(kind Kind, err error) (*Stream, error) {
		c.Release(s)
		log.Warn().Err(err).Str("module", "media").Str("kind", string(kind)).Msg("acquire failed")
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMediaUnavailable, kind, err)
	}

	if want.Audio {
		t, err := c.dev.OpenAudio(ctx)
		if err != nil {
			return fail(KindAudio, err)
		}
		s.mu.Lock()
		s.audio = t
		s.mu.Unlock()
	}
	if want.Video {
		t, err := c.dev.OpenVideo(ctx)
		if err != nil {
			return fail(KindVideo, err)
		}
		s.swapVideo(t)
	}
	if err := ctx.Err(); err != nil {
		c.Release(s)
		log.Debug().Err(err).Str("module", "media").Msg("acquire abandoned")
		return nil, fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
	}
	log.Debug().Str("module", "media").Bool("audio", want.Audio).Bool("video", want.Video).Msg("stream acquired")
	return s, nil
}

// Release stops every track of s. Safe to call more than once.
func (c *Controller) Release(s *Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
	c.mu.Lock()
	if c.held == s {
		c.held = nil
	}
	c.mu.Unlock()
}

// Held reports the stream currently owned, if any.
func (c *Controller) Held() *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// SetAudioEnabled mutes or unmutes without touching the device.
func (c *Controller) SetAudioEnabled(s *Stream, enabled bool) error {
	a := s.Audio()
	if a == nil {
		return ErrNoAudioTrack
	}
	a.SetEnabled(enabled)
	return nil
}

// StopVideo stops and detaches the video track, freeing the camera. It returns
// the detached track, or nil if there was none.
func (c *Controller) StopVideo(s *Stream) *Track {
	old := s.swapVideo(nil)
	if old != nil {
		old.Stop()
	}
	return old
}

// OpenVideo opens a fresh camera track that is not yet part of any stream.
func (c *Controller) OpenVideo(ctx context.Context) (*Track, error) {
	t, err := c.dev.OpenVideo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMediaUnavailable, KindVideo, err)
	}
	return t, nil
}

// ReplaceVideoTrack puts t in place of the current video track, stopping the old one.
func (c *Controller) ReplaceVideoTrack(s *Stream, t *Track) *Track {
	old := s.swapVideo(t)
	if old != nil && old != t {
		old.Stop()
	}
	return old
}
