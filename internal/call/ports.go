package call

import (
	"context"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/media"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// Signaler sends one message of kind to another user through the relay.
type Signaler interface {
	Send(kind signaling.Kind, to domain.UserID, body any) error
}

// MediaController is implemented by *media.Controller.
type MediaController interface {
	Acquire(ctx context.Context, want media.Constraints) (*media.Stream, error)
	Release(s *media.Stream)
	SetAudioEnabled(s *media.Stream, enabled bool) error
	StopVideo(s *media.Stream) *media.Track
	OpenVideo(ctx context.Context) (*media.Track, error)
	ReplaceVideoTrack(s *media.Stream, t *media.Track) *media.Track
}

// Peer is the peer-to-peer media transport of one call.
type Peer interface {
	AddTrack(t *media.Track) error
	RemoveTrack(t *media.Track) error
	// CreateOffer creates and applies a local offer.
	CreateOffer() (webrtc.SessionDescription, error)
	// ApplyOffer applies a remote offer and returns the applied local answer.
	ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddCandidate may be called before the remote description is known.
	AddCandidate(c webrtc.ICECandidateInit) error
	Close() error
}

// PeerEvents are invoked from transport goroutines.
type PeerEvents struct {
	Candidate func(webrtc.ICECandidateInit)
	State     func(TransportState)
}

type PeerFactory func(ev PeerEvents) (Peer, error)
