package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Ring/internal/call"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/media"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errNoLocalTrack = errors.New("track has no local source")

// Factory builds peer connections sharing one configured pion API.
type Factory struct {
	api  *webrtc.API
	cfg  webrtc.Configuration
	user domain.UserID
}

func NewFactory(user domain.UserID, iceServers []string) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{LoggerFactory: zerologFactory{}}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &Factory{api: api, cfg: cfg, user: user}, nil
}

// NewPeer has the call.PeerFactory signature.
func (f *Factory) NewPeer(ev call.PeerEvents) (call.Peer, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{pc: pc, user: f.user, senders: make(map[*media.Track]*webrtc.RTPSender)}
	c.start(ev)
	return c, nil
}

// WebRTCConnection implements call.Peer. Remote candidates that arrive before
// the remote description are held until it is applied.
type WebRTCConnection struct {
	pc   *webrtc.PeerConnection
	user domain.UserID

	mu        sync.Mutex
	senders   map[*media.Track]*webrtc.RTPSender
	pending   []webrtc.ICECandidateInit
	remoteSet bool
}

func (c *WebRTCConnection) start(ev call.PeerEvents) {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("user", c.user.String()).Str("peer_connection_state", s.String()).Msg("Peer state")
		if ev.State != nil {
			ev.State(transportState(s))
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && ev.Candidate != nil {
			ev.Candidate(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("user", c.user.String()).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})
}

func transportState(s webrtc.PeerConnectionState) call.TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return call.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return call.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return call.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return call.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return call.TransportClosed
	}
	return call.TransportNew
}

func (c *WebRTCConnection) AddTrack(t *media.Track) error {
	if t.Local() == nil {
		return errNoLocalTrack
	}
	sender, err := c.pc.AddTrack(t.Local())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.senders[t] = sender
	c.mu.Unlock()

	// Interceptors only run while RTCP is read.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) RemoveTrack(t *media.Track) error {
	c.mu.Lock()
	sender, ok := c.senders[t]
	delete(c.senders, t)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.pc.RemoveTrack(sender)
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.setRemote(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.setRemote(answer)
}

func (c *WebRTCConnection) setRemote(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("remote %s: %w", desc.Type, err)
	}
	c.mu.Lock()
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ci := range pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Str("user", c.user.String()).Msg("queued candidate rejected")
		}
	}
	return nil
}

func (c *WebRTCConnection) AddCandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if !c.remoteSet {
		c.pending = append(c.pending, ci)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) pendingCandidates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *WebRTCConnection) Close() error {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("user", c.user.String()).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("user", c.user.String()).Msg("closed")
	return nil
}
