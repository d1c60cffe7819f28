package call

import (
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/media"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// session is the tagged call state. Resources it refers to (stream, peer,
// timers) live on the Phone and are touched only through effects.
type session struct {
	state  State
	callID string
	peer   domain.UserID
	role   Role
	want   media.Constraints

	haveStream   bool
	peerOpen     bool
	described    bool
	connected    bool
	micMuted     bool
	cameraOff    bool
	videoPending bool
	remoteVideo  bool

	localCandidates  int
	remoteCandidates int

	endReason string
	err       error
}

func (s session) snapshot() Snapshot {
	return Snapshot{
		State:            s.state,
		CallID:           s.callID,
		Peer:             s.peer,
		Role:             s.role,
		MicMuted:         s.micMuted,
		CameraOff:        s.cameraOff,
		RemoteVideo:      s.remoteVideo,
		LocalCandidates:  s.localCandidates,
		RemoteCandidates: s.remoteCandidates,
		EndReason:        s.endReason,
		Err:              s.err,
	}
}

type event interface{}

// Local actions.
type (
	dialEvent struct {
		peer   domain.UserID
		callID string
		want   media.Constraints
	}
	acceptEvent       struct{ want media.Constraints }
	rejectEvent       struct{}
	hangUpEvent       struct{}
	toggleMicEvent    struct{}
	toggleCameraEvent struct{}
)

// Inbound signals, already decoded.
type (
	remoteInitiate struct {
		from domain.UserID
		meta signaling.CallMeta
	}
	remoteAccept struct {
		from   domain.UserID
		callID string
	}
	remoteReject struct {
		from domain.UserID
		body signaling.CallEnd
	}
	remoteEnd struct {
		from domain.UserID
		body signaling.CallEnd
	}
	remoteOffer struct {
		from   domain.UserID
		callID string
		desc   webrtc.SessionDescription
		video  bool
	}
	remoteAnswer struct {
		from   domain.UserID
		callID string
		desc   webrtc.SessionDescription
		video  bool
	}
	remoteCandidate struct {
		from   domain.UserID
		callID string
		init   webrtc.ICECandidateInit
	}
	deliveryFailed struct{ body signaling.DeliveryFailure }
)

// Completions and notifications.
type (
	mediaReady struct {
		callID string
		stream *media.Stream
		err    error
	}
	videoReady struct {
		callID string
		track  *media.Track
		err    error
	}
	transportChanged struct {
		callID string
		state  TransportState
	}
	localCandidate struct {
		callID string
		init   webrtc.ICECandidateInit
	}
	ringExpired struct{ callID string }
	failed      struct {
		callID string
		err    error
	}
	cleanedUp struct{}
)

type effect interface{}

type (
	sendEffect struct {
		callID string
		to     domain.UserID
		kind   signaling.Kind
		body   any
	}
	acquireEffect struct {
		callID string
		want   media.Constraints
	}
	holdStream       struct{ stream *media.Stream }
	discardStream    struct{ stream *media.Stream }
	releaseEffect    struct{}
	openPeerEffect   struct{ callID string }
	closePeerEffect  struct{}
	offerEffect      struct{ callID string }
	applyOfferEffect struct {
		callID string
		desc   webrtc.SessionDescription
	}
	applyAnswerEffect struct {
		callID string
		desc   webrtc.SessionDescription
	}
	addCandidateEffect struct{ init webrtc.ICECandidateInit }
	startRingEffect    struct{ callID string }
	stopRingEffect     struct{}
	setAudioEffect     struct{ enabled bool }
	stopVideoEffect    struct{}
	openVideoEffect    struct{ callID string }
	attachVideoEffect  struct {
		callID string
		track  *media.Track
	}
	discardTrack struct{ track *media.Track }
	notifyEffect struct{ err error }
)

// transition is the whole call state machine. It has no side effects; the
// Phone performs the returned effects in order.
func transition(s session, ev event) (session, []effect) {
	switch e := ev.(type) {
	case mediaReady:
		return s.onMedia(e)
	case videoReady:
		return s.onVideo(e)
	case remoteInitiate:
		if s.state != Idle {
			return s, []effect{sendEffect{
				to:   e.from,
				kind: signaling.KindCallReject,
				body: signaling.CallEnd{CallID: e.meta.CallID, Reason: signaling.ReasonBusy},
			}}
		}
	case dialEvent:
		if s.state != Idle {
			return s, []effect{notifyEffect{ErrBusy}}
		}
	case deliveryFailed:
		if !s.state.inCall() || e.body.Kind == signaling.KindChat || !s.matches(e.body.To, e.body.CallID) {
			return s, nil
		}
		return s.end(signaling.ReasonUnreachable, domain.ErrDestinationUnavailable)
	case failed:
		if !s.state.inCall() || e.callID != s.callID {
			return s, nil
		}
		return s.end(signaling.ReasonFailed, e.err, s.teardownSignal(signaling.ReasonFailed))
	case hangUpEvent:
		return s.hangUp()
	}

	switch s.state {
	case Idle:
		return s.idle(ev)
	case Outgoing:
		return s.outgoing(ev)
	case Incoming:
		return s.incoming(ev)
	case Negotiating, Active:
		return s.connecting(ev)
	case Ended:
		if _, ok := ev.(cleanedUp); ok {
			return session{state: Idle, endReason: s.endReason, err: s.err}, nil
		}
	}
	return s, nil
}

func (s session) idle(ev event) (session, []effect) {
	switch e := ev.(type) {
	case dialEvent:
		next := session{state: Outgoing, callID: e.callID, peer: e.peer, role: RoleCaller, want: e.want}
		return next, []effect{
			acquireEffect{callID: e.callID, want: e.want},
			sendEffect{callID: e.callID, to: e.peer, kind: signaling.KindCallInitiate, body: signaling.CallMeta{
				CallID: e.callID, Audio: e.want.Audio, Video: e.want.Video,
			}},
			startRingEffect{callID: e.callID},
		}
	case remoteInitiate:
		next := session{state: Incoming, callID: e.meta.CallID, peer: e.from, role: RoleCallee}
		return next, []effect{startRingEffect{callID: e.meta.CallID}}
	}
	return s, nil
}

func (s session) outgoing(ev event) (session, []effect) {
	switch e := ev.(type) {
	case remoteAccept:
		if !s.matches(e.from, e.callID) {
			return s, nil
		}
		s.state = Negotiating
		effs := []effect{stopRingEffect{}}
		if s.haveStream {
			s.peerOpen = true
			effs = append(effs, openPeerEffect{callID: s.callID}, offerEffect{callID: s.callID})
		}
		return s, effs
	case remoteReject:
		if !s.matches(e.from, e.body.CallID) {
			return s, nil
		}
		return s.end(e.body.Reason, ErrRejected)
	case remoteEnd:
		if !s.matches(e.from, e.body.CallID) {
			return s, nil
		}
		return s.end(e.body.Reason, nil)
	case ringExpired:
		if e.callID != s.callID {
			return s, nil
		}
		return s.end(signaling.ReasonTimeout, ErrRingTimeout, s.teardownSignal(signaling.ReasonTimeout))
	case toggleMicEvent:
		return s.toggleMic()
	}
	return s, nil
}

func (s session) incoming(ev event) (session, []effect) {
	switch e := ev.(type) {
	case acceptEvent:
		s.state = Negotiating
		s.want = e.want
		return s, []effect{stopRingEffect{}, acquireEffect{callID: s.callID, want: e.want}}
	case rejectEvent:
		return s.end(signaling.ReasonRejected, nil, s.teardownSignal(signaling.ReasonRejected))
	case remoteEnd:
		if !s.matches(e.from, e.body.CallID) {
			return s, nil
		}
		return s.end(e.body.Reason, nil)
	case ringExpired:
		if e.callID != s.callID {
			return s, nil
		}
		return s.end(signaling.ReasonTimeout, ErrRingTimeout, s.teardownSignal(signaling.ReasonTimeout))
	}
	return s, nil
}

// connecting covers Negotiating and Active: both exchange descriptions and
// candidates, and both end the same way.
func (s session) connecting(ev event) (session, []effect) {
	switch e := ev.(type) {
	case remoteOffer:
		if !s.matches(e.from, e.callID) || !s.peerOpen {
			return s, nil
		}
		s.described = true
		s.remoteVideo = e.video
		return s.promote(), []effect{applyOfferEffect{callID: s.callID, desc: e.desc}}
	case remoteAnswer:
		if !s.matches(e.from, e.callID) || !s.peerOpen {
			return s, nil
		}
		s.described = true
		s.remoteVideo = e.video
		return s.promote(), []effect{applyAnswerEffect{callID: s.callID, desc: e.desc}}
	case remoteCandidate:
		if !s.matches(e.from, e.callID) || !s.peerOpen {
			return s, nil
		}
		s.remoteCandidates++
		return s, []effect{addCandidateEffect{init: e.init}}
	case localCandidate:
		if e.callID != s.callID {
			return s, nil
		}
		s.localCandidates++
		return s, []effect{sendEffect{
			callID: s.callID, to: s.peer, kind: signaling.KindICECandidate,
			body: signaling.CandidateFromPion(s.callID, e.init),
		}}
	case transportChanged:
		if e.callID != s.callID {
			return s, nil
		}
		if e.state.down() {
			return s.end(signaling.ReasonTransport, domain.ErrTransportDisconnected, s.teardownSignal(signaling.ReasonTransport))
		}
		if e.state == TransportConnected {
			s.connected = true
			return s.promote(), nil
		}
	case remoteEnd:
		if !s.matches(e.from, e.body.CallID) {
			return s, nil
		}
		return s.end(e.body.Reason, nil)
	case remoteReject:
		if !s.matches(e.from, e.body.CallID) {
			return s, nil
		}
		return s.end(e.body.Reason, ErrRejected)
	case toggleMicEvent:
		return s.toggleMic()
	case toggleCameraEvent:
		if s.state != Active || s.videoPending {
			return s, nil
		}
		if s.cameraOff {
			s.videoPending = true
			return s, []effect{openVideoEffect{callID: s.callID}}
		}
		s.cameraOff = true
		return s, []effect{stopVideoEffect{}, offerEffect{callID: s.callID}}
	}
	return s, nil
}

func (s session) onMedia(e mediaReady) (session, []effect) {
	if !s.state.inCall() || e.callID != s.callID || s.haveStream {
		if e.stream != nil {
			return s, []effect{discardStream{e.stream}}
		}
		return s, nil
	}
	if e.err != nil {
		return s.end(signaling.ReasonMediaUnavailable, e.err, s.teardownSignal(signaling.ReasonMediaUnavailable))
	}
	s.haveStream = true
	s.cameraOff = e.stream.Video() == nil
	effs := []effect{holdStream{e.stream}}
	if s.micMuted {
		effs = append(effs, setAudioEffect{enabled: false})
	}
	if s.state != Negotiating {
		return s, effs
	}
	s.peerOpen = true
	effs = append(effs, openPeerEffect{callID: s.callID})
	if s.role == RoleCaller {
		return s, append(effs, offerEffect{callID: s.callID})
	}
	return s, append(effs, sendEffect{
		callID: s.callID, to: s.peer, kind: signaling.KindCallAccept,
		body: signaling.CallMeta{CallID: s.callID, Audio: s.want.Audio, Video: s.want.Video},
	})
}

func (s session) onVideo(e videoReady) (session, []effect) {
	if s.state != Active || e.callID != s.callID || !s.videoPending {
		if e.track != nil {
			return s, []effect{discardTrack{e.track}}
		}
		return s, nil
	}
	s.videoPending = false
	if e.err != nil {
		return s, []effect{notifyEffect{e.err}}
	}
	s.cameraOff = false
	return s, []effect{attachVideoEffect{callID: s.callID, track: e.track}, offerEffect{callID: s.callID}}
}

func (s session) toggleMic() (session, []effect) {
	s.micMuted = !s.micMuted
	if !s.haveStream {
		return s, nil
	}
	return s, []effect{setAudioEffect{enabled: !s.micMuted}}
}

func (s session) hangUp() (session, []effect) {
	switch s.state {
	case Outgoing:
		return s.end(signaling.ReasonCancelled, nil, s.teardownSignal(signaling.ReasonCancelled))
	case Incoming:
		return s.end(signaling.ReasonRejected, nil, s.teardownSignal(signaling.ReasonRejected))
	case Negotiating, Active:
		return s.end(signaling.ReasonHangUp, nil, s.teardownSignal(signaling.ReasonHangUp))
	}
	return s, nil
}

// promote moves Negotiating to Active once descriptions are applied and the
// transport is up.
func (s session) promote() session {
	if s.state == Negotiating && s.described && s.connected {
		s.state = Active
	}
	return s
}

func (s session) matches(from domain.UserID, callID string) bool {
	return from == s.peer && callID == s.callID
}

// teardownSignal tells the other side the call is over. A callee that never
// accepted rejects; everyone else ends.
func (s session) teardownSignal(reason string) effect {
	kind := signaling.KindCallEnd
	if s.state == Incoming {
		kind = signaling.KindCallReject
	}
	return sendEffect{to: s.peer, kind: kind, body: signaling.CallEnd{CallID: s.callID, Reason: reason}}
}

// end moves to Ended. Every exit path goes through here so the stream and
// the transport are released.
func (s session) end(reason string, err error, notify ...effect) (session, []effect) {
	s.state = Ended
	s.endReason = reason
	s.err = err
	effs := append([]effect{}, notify...)
	effs = append(effs, stopRingEffect{}, closePeerEffect{}, releaseEffect{})
	return s, effs
}
