package call

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/media"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// switchboard relays between phones the way the server does: it injects from
// and answers unknown destinations with delivery-failure.
type switchboard struct {
	mu     sync.Mutex
	phones map[domain.UserID]*Phone
	log    []signaling.Kind
}

func newSwitchboard() *switchboard {
	return &switchboard{phones: make(map[domain.UserID]*Phone)}
}

func (sb *switchboard) kinds() []signaling.Kind {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return append([]signaling.Kind(nil), sb.log...)
}

type line struct {
	sb   *switchboard
	self domain.UserID
}

func (l line) Send(kind signaling.Kind, to domain.UserID, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	l.sb.mu.Lock()
	l.sb.log = append(l.sb.log, kind)
	dst, ok := l.sb.phones[to]
	src := l.sb.phones[l.self]
	l.sb.mu.Unlock()

	if !ok {
		df, _ := json.Marshal(signaling.DeliveryFailure{
			Kind:   kind,
			To:     to,
			CallID: signaling.CallIDOf(b),
			Reason: domain.ErrDestinationUnavailable.Error(),
		})
		_ = src.HandleSignal(&signaling.Envelope{Type: signaling.EventDeliveryFailure, To: l.self, Body: df})
		return nil
	}
	return dst.HandleSignal(&signaling.Envelope{Type: kind.Outbound(), From: l.self, To: to, Body: b})
}

// fakeDevice hands out tracks and remembers them.
type fakeDevice struct {
	audioErr error

	mu       sync.Mutex
	tracks   []*media.Track
	released atomic.Int32
}

func (d *fakeDevice) open(kind media.Kind, err error) (*media.Track, error) {
	if err != nil {
		return nil, err
	}
	t := media.NewTrack(kind, nil, func() { d.released.Add(1) })
	d.mu.Lock()
	d.tracks = append(d.tracks, t)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDevice) OpenAudio(context.Context) (*media.Track, error) {
	return d.open(media.KindAudio, d.audioErr)
}

func (d *fakeDevice) OpenVideo(context.Context) (*media.Track, error) {
	return d.open(media.KindVideo, nil)
}

func (d *fakeDevice) opened() []*media.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*media.Track(nil), d.tracks...)
}

// allReleased reports whether every opened track was stopped exactly once.
func (d *fakeDevice) allReleased() bool {
	return int(d.released.Load()) == len(d.opened())
}

// fakePeer connects as soon as it holds both descriptions.
type fakePeer struct {
	ev PeerEvents

	mu         sync.Mutex
	tracks     map[*media.Track]bool
	candidates int
	closed     bool
}

func (f *fakePeer) AddTrack(t *media.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[t] = true
	return nil
}

func (f *fakePeer) RemoveTrack(t *media.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracks, t)
	return nil
}

func (f *fakePeer) describe(t webrtc.SDPType) webrtc.SessionDescription {
	f.mu.Lock()
	video := false
	for tr := range f.tracks {
		if tr.Kind() == media.KindVideo {
			video = true
		}
	}
	f.mu.Unlock()

	sdp := "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\nc=IN IP4 0.0.0.0\r\na=mid:0\r\na=sendrecv\r\na=rtpmap:111 opus/48000/2\r\n"
	if video {
		sdp += "m=video 9 UDP/TLS/RTP/SAVPF 96\r\nc=IN IP4 0.0.0.0\r\na=mid:1\r\na=sendrecv\r\na=rtpmap:96 VP8/90000\r\n"
	}
	return webrtc.SessionDescription{Type: t, SDP: sdp}
}

func (f *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	go f.ev.Candidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2122260223 127.0.0.1 50000 typ host"})
	return f.describe(webrtc.SDPTypeOffer), nil
}

func (f *fakePeer) ApplyOffer(webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	go func() {
		f.ev.Candidate(webrtc.ICECandidateInit{Candidate: "candidate:2 1 udp 2122260223 127.0.0.1 50001 typ host"})
		f.ev.State(TransportConnected)
	}()
	return f.describe(webrtc.SDPTypeAnswer), nil
}

func (f *fakePeer) ApplyAnswer(webrtc.SessionDescription) error {
	go f.ev.State(TransportConnected)
	return nil
}

func (f *fakePeer) AddCandidate(webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates++
	return nil
}

func (f *fakePeer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	go f.ev.State(TransportClosed)
	return nil
}

type peers struct {
	mu  sync.Mutex
	all []*fakePeer
}

func (ps *peers) factory(ev PeerEvents) (Peer, error) {
	p := &fakePeer{ev: ev, tracks: make(map[*media.Track]bool)}
	ps.mu.Lock()
	ps.all = append(ps.all, p)
	ps.mu.Unlock()
	return p, nil
}

func (ps *peers) last() *fakePeer {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.all) == 0 {
		return nil
	}
	return ps.all[len(ps.all)-1]
}

type party struct {
	phone  *Phone
	device *fakeDevice
	peers  *peers
}

func (sb *switchboard) join(t *testing.T, user domain.UserID, device *fakeDevice, ring time.Duration) *party {
	t.Helper()
	if device == nil {
		device = &fakeDevice{}
	}
	ps := &peers{}
	p := NewPhone(Options{
		Self:        user,
		Signaler:    line{sb: sb, self: user},
		Media:       media.NewController(device),
		NewPeer:     ps.factory,
		RingTimeout: ring,
	})
	sb.mu.Lock()
	sb.phones[user] = p
	sb.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &party{phone: p, device: device, peers: ps}
}

func waitFor(t *testing.T, p *Phone, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(p.Snapshot()) }, 2*time.Second, 2*time.Millisecond)
	return p.Snapshot()
}

func inState(s State) func(Snapshot) bool {
	return func(snap Snapshot) bool { return snap.State == s }
}

// endedWith waits until the phone is back to Idle after a call ended for reason.
func endedWith(reason string) func(Snapshot) bool {
	return func(snap Snapshot) bool { return snap.State == Idle && snap.EndReason == reason }
}

// connect brings alice and bob to Active.
func connect(t *testing.T, alice, bob *party) {
	t.Helper()
	require.NoError(t, alice.phone.Dial("bob"))
	waitFor(t, bob.phone, inState(Incoming))
	require.NoError(t, bob.phone.Accept())
	waitFor(t, alice.phone, inState(Active))
	waitFor(t, bob.phone, inState(Active))
}
