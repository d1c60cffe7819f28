package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/media"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

const DefaultRingTimeout = 30 * time.Second

var errNoTransport = errors.New("no transport for this call")

type Options struct {
	Self        domain.UserID
	Signaler    Signaler
	Media       MediaController
	NewPeer     PeerFactory
	Constraints media.Constraints
	RingTimeout time.Duration
	Hooks       Hooks
}

// Phone is one local participant's call session. All state changes happen on
// the goroutine running Run; the exported methods only post events to it.
type Phone struct {
	opts    Options
	events  chan event
	stopped chan struct{}

	// owned by the Run goroutine
	s          session
	stream     *media.Stream
	peer       Peer
	ring       *time.Timer
	callCtx    context.Context
	cancelCall context.CancelFunc

	mu   sync.RWMutex
	snap Snapshot
}

func NewPhone(opts Options) *Phone {
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = DefaultRingTimeout
	}
	if !opts.Constraints.Audio && !opts.Constraints.Video {
		opts.Constraints = media.Constraints{Audio: true, Video: true}
	}
	return &Phone{
		opts:    opts,
		events:  make(chan event, 64),
		stopped: make(chan struct{}),
	}
}

// Run processes events until ctx ends. A call still underway is hung up.
func (p *Phone) Run(ctx context.Context) {
	defer p.drain()
	for {
		select {
		case <-ctx.Done():
			p.dispatch(hangUpEvent{})
			log.Info().Str("module", "call").Str("user", p.opts.Self.String()).Msg("phone stopped")
			return
		case ev := <-p.events:
			p.dispatch(ev)
		}
	}
}

// drain closes the loop and releases media that arrived too late to be used.
func (p *Phone) drain() {
	close(p.stopped)
	for {
		select {
		case ev := <-p.events:
			switch e := ev.(type) {
			case mediaReady:
				if e.stream != nil {
					p.opts.Media.Release(e.stream)
				}
			case videoReady:
				if e.track != nil {
					e.track.Stop()
				}
			}
		default:
			return
		}
	}
}

func (p *Phone) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Dial starts a call to peer.
func (p *Phone) Dial(peer domain.UserID) error {
	if _, err := domain.ParseUserID(peer.String()); err != nil {
		return err
	}
	if peer == p.opts.Self {
		return ErrSelfCall
	}
	return p.send(dialEvent{peer: peer, callID: xid.New().String(), want: p.opts.Constraints})
}

func (p *Phone) Accept() error { return p.send(acceptEvent{want: p.opts.Constraints}) }
func (p *Phone) Reject() error { return p.send(rejectEvent{}) }
func (p *Phone) HangUp() error { return p.send(hangUpEvent{}) }
func (p *Phone) ToggleMic() error { return p.send(toggleMicEvent{}) }
func (p *Phone) ToggleCamera() error { return p.send(toggleCameraEvent{}) }

// HandleSignal feeds one envelope received from the relay.
func (p *Phone) HandleSignal(env *signaling.Envelope) error {
	ev, err := decodeSignal(env)
	if err != nil || ev == nil {
		return err
	}
	return p.send(ev)
}

func (p *Phone) send(ev event) error {
	if !p.post(ev) {
		return ErrStopped
	}
	return nil
}

// post delivers ev to the loop. It reports false once the loop has stopped.
func (p *Phone) post(ev event) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.stopped:
		return false
	}
}

func decodeSignal(env *signaling.Envelope) (event, error) {
	if env.Type == signaling.EventDeliveryFailure {
		var df signaling.DeliveryFailure
		if err := env.DecodeBody(&df); err != nil {
			return nil, err
		}
		return deliveryFailed{body: df}, nil
	}
	kind, ok := signaling.KindOfOutbound(env.Type)
	if !ok {
		return nil, nil
	}
	switch kind {
	case signaling.KindCallInitiate:
		var m signaling.CallMeta
		if err := env.DecodeBody(&m); err != nil {
			return nil, err
		}
		return remoteInitiate{from: env.From, meta: m}, nil
	case signaling.KindCallAccept:
		var m signaling.CallMeta
		if err := env.DecodeBody(&m); err != nil {
			return nil, err
		}
		return remoteAccept{from: env.From, callID: m.CallID}, nil
	case signaling.KindCallReject:
		var b signaling.CallEnd
		if err := env.DecodeBody(&b); err != nil {
			return nil, err
		}
		return remoteReject{from: env.From, body: b}, nil
	case signaling.KindCallEnd:
		var b signaling.CallEnd
		if err := env.DecodeBody(&b); err != nil {
			return nil, err
		}
		return remoteEnd{from: env.From, body: b}, nil
	case signaling.KindOffer, signaling.KindAnswer:
		var b signaling.SDP
		if err := env.DecodeBody(&b); err != nil {
			return nil, err
		}
		desc, err := b.ToPion()
		if err != nil {
			return nil, err
		}
		video, err := b.SendsVideo()
		if err != nil {
			return nil, err
		}
		if kind == signaling.KindOffer {
			return remoteOffer{from: env.From, callID: b.CallID, desc: desc, video: video}, nil
		}
		return remoteAnswer{from: env.From, callID: b.CallID, desc: desc, video: video}, nil
	case signaling.KindICECandidate:
		var b signaling.Candidate
		if err := env.DecodeBody(&b); err != nil {
			return nil, err
		}
		return remoteCandidate{from: env.From, callID: b.CallID, init: b.ToPion()}, nil
	}
	return nil, nil
}

// dispatch runs ev and every follow-up it causes to completion.
func (p *Phone) dispatch(ev event) {
	queue := []event{ev}
	for len(queue) > 0 {
		ev, queue = queue[0], queue[1:]
		prev := p.s

		next, effs := transition(p.s, ev)
		p.s = next
		if !prev.state.inCall() && next.state.inCall() {
			p.callCtx, p.cancelCall = context.WithCancel(context.Background())
		}
		for _, eff := range effs {
			if follow := p.apply(eff); follow != nil {
				queue = append(queue, follow)
			}
		}
		if next.state == Ended && prev.state != Ended {
			if p.cancelCall != nil {
				p.cancelCall()
			}
			queue = append(queue, cleanedUp{})
		}
		p.publish(prev.state)
	}
}

func (p *Phone) publish(prev State) {
	snap := p.s.snapshot()
	p.mu.Lock()
	changed := snap != p.snap
	p.snap = snap
	p.mu.Unlock()
	if !changed {
		return
	}
	if prev != snap.State {
		log.Info().Str("module", "call").Str("user", p.opts.Self.String()).Str("call", snap.CallID).
			Str("from", prev.String()).Str("to", snap.State.String()).Str("reason", snap.EndReason).Msg("call state")
	}
	if p.opts.Hooks.OnState != nil {
		p.opts.Hooks.OnState(snap)
	}
}

// apply performs one effect. A returned event is processed right after the
// current one.
func (p *Phone) apply(eff effect) event {
	switch e := eff.(type) {
	case sendEffect:
		if err := p.opts.Signaler.Send(e.kind, e.to, e.body); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("kind", string(e.kind)).Str("to", e.to.String()).Msg("signal not sent")
			if e.callID != "" {
				return failed{callID: e.callID, err: fmt.Errorf("%w: %v", domain.ErrTransportDisconnected, err)}
			}
		}
	case acquireEffect:
		ctx := p.callCtx
		go func() {
			s, err := p.opts.Media.Acquire(ctx, e.want)
			if !p.post(mediaReady{callID: e.callID, stream: s, err: err}) && s != nil {
				p.opts.Media.Release(s)
			}
		}()
	case holdStream:
		p.stream = e.stream
	case discardStream:
		p.opts.Media.Release(e.stream)
	case releaseEffect:
		if p.stream != nil {
			p.opts.Media.Release(p.stream)
			p.stream = nil
		}
	case openPeerEffect:
		if err := p.openPeer(e.callID); err != nil {
			return failed{callID: e.callID, err: err}
		}
	case closePeerEffect:
		if p.peer != nil {
			if err := p.peer.Close(); err != nil {
				log.Warn().Err(err).Str("module", "call").Msg("peer close")
			}
			p.peer = nil
		}
	case offerEffect:
		if p.peer == nil {
			return failed{callID: e.callID, err: errNoTransport}
		}
		desc, err := p.peer.CreateOffer()
		if err != nil {
			return failed{callID: e.callID, err: err}
		}
		return p.apply(sendEffect{callID: e.callID, to: p.s.peer, kind: signaling.KindOffer, body: signaling.SDPFromPion(e.callID, desc)})
	case applyOfferEffect:
		if p.peer == nil {
			return nil
		}
		answer, err := p.peer.ApplyOffer(e.desc)
		if err != nil {
			return failed{callID: e.callID, err: err}
		}
		return p.apply(sendEffect{callID: e.callID, to: p.s.peer, kind: signaling.KindAnswer, body: signaling.SDPFromPion(e.callID, answer)})
	case applyAnswerEffect:
		if p.peer == nil {
			return nil
		}
		if err := p.peer.ApplyAnswer(e.desc); err != nil {
			return failed{callID: e.callID, err: err}
		}
	case addCandidateEffect:
		if p.peer != nil {
			if err := p.peer.AddCandidate(e.init); err != nil {
				log.Warn().Err(err).Str("module", "call").Msg("remote candidate rejected")
			}
		}
	case startRingEffect:
		p.stopRing()
		callID := e.callID
		p.ring = time.AfterFunc(p.opts.RingTimeout, func() { p.post(ringExpired{callID: callID}) })
	case stopRingEffect:
		p.stopRing()
	case setAudioEffect:
		if p.stream != nil {
			if err := p.opts.Media.SetAudioEnabled(p.stream, e.enabled); err != nil {
				log.Warn().Err(err).Str("module", "call").Msg("mic toggle")
			}
		}
	case stopVideoEffect:
		if p.stream == nil {
			return nil
		}
		if t := p.opts.Media.StopVideo(p.stream); t != nil && p.peer != nil {
			if err := p.peer.RemoveTrack(t); err != nil {
				log.Warn().Err(err).Str("module", "call").Msg("remove video")
			}
		}
	case openVideoEffect:
		ctx := p.callCtx
		go func() {
			t, err := p.opts.Media.OpenVideo(ctx)
			if !p.post(videoReady{callID: e.callID, track: t, err: err}) && t != nil {
				t.Stop()
			}
		}()
	case attachVideoEffect:
		if p.stream == nil || p.peer == nil {
			e.track.Stop()
			return nil
		}
		p.opts.Media.ReplaceVideoTrack(p.stream, e.track)
		if err := p.peer.AddTrack(e.track); err != nil {
			return failed{callID: e.callID, err: err}
		}
	case discardTrack:
		e.track.Stop()
	case notifyEffect:
		log.Warn().Err(e.err).Str("module", "call").Str("user", p.opts.Self.String()).Msg("call error")
		if p.opts.Hooks.OnError != nil {
			p.opts.Hooks.OnError(e.err)
		}
	}
	return nil
}

func (p *Phone) openPeer(callID string) error {
	peer, err := p.opts.NewPeer(PeerEvents{
		Candidate: func(c webrtc.ICECandidateInit) { p.post(localCandidate{callID: callID, init: c}) },
		State:     func(st TransportState) { p.post(transportChanged{callID: callID, state: st}) },
	})
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	if p.stream != nil {
		for _, t := range p.stream.Tracks() {
			if err := peer.AddTrack(t); err != nil {
				_ = peer.Close()
				return fmt.Errorf("attach %s: %w", t.Kind(), err)
			}
		}
	}
	p.peer = peer
	return nil
}

func (p *Phone) stopRing() {
	if p.ring != nil {
		p.ring.Stop()
		p.ring = nil
	}
}
