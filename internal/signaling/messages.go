package signaling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// Teardown reasons carried by call-reject and call-end.
const (
	ReasonRejected         = "rejected"
	ReasonBusy             = "busy"
	ReasonHangUp           = "hangup"
	ReasonCancelled        = "cancelled"
	ReasonTimeout          = "timeout"
	ReasonMediaUnavailable = "media-unavailable"
	ReasonTransport        = "transport-disconnected"
	ReasonUnreachable      = "unreachable"
	ReasonFailed           = "failed"
)

// AddUser is the add-user body. The relay registers the authenticated identity,
// so UserID is informational.
type AddUser struct {
	UserID domain.UserID `json:"user_id,omitempty"`
}

// Chat is the send-msg body, passed through to the chat collaborator untouched.
type Chat struct {
	Msg string `json:"msg"`
}

// CallMeta is the call-user / accept-call body.
type CallMeta struct {
	CallID string `json:"call_id"`
	Audio  bool   `json:"audio"`
	Video  bool   `json:"video"`
}

// CallEnd is the reject-call / end-call body.
type CallEnd struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

// SDP is the offer / answer body.
type SDP struct {
	CallID string `json:"call_id"`
	Type   string `json:"type"`
	SDP    string `json:"sdp"`
}

func SDPFromPion(callID string, desc webrtc.SessionDescription) SDP {
	return SDP{CallID: callID, Type: desc.Type.String(), SDP: desc.SDP}
}

func (s SDP) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w: unsupported sdp type %q", domain.ErrMalformedMessage, s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

// SendsVideo reports whether the description announces an active outgoing video leg.
func (s SDP) SendsVideo() (bool, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(s.SDP)); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "video" || md.MediaName.Port.Value == 0 {
			continue
		}
		if _, ok := md.Attribute("inactive"); ok {
			continue
		}
		if _, ok := md.Attribute("recvonly"); ok {
			continue
		}
		return true, nil
	}
	return false, nil
}

// Candidate is the ice-candidate body.
type Candidate struct {
	CallID           string  `json:"call_id"`
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(callID string, init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		CallID:           callID,
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// DeliveryFailure tells a sender its message could not be routed. CallID
// echoes the call the message belonged to, empty for chat.
type DeliveryFailure struct {
	Kind   Kind          `json:"kind"`
	To     domain.UserID `json:"to"`
	CallID string        `json:"call_id,omitempty"`
	Reason string        `json:"reason"`
}

// CallIDOf reads the call_id every call body carries. It returns "" for
// bodies without one.
func CallIDOf(body json.RawMessage) string {
	if len(body) == 0 {
		return ""
	}
	var b struct {
		CallID string `json:"call_id"`
	}
	if err := json.Unmarshal(body, &b); err != nil {
		return ""
	}
	return b.CallID
}

// ClientConfig is what a participant learns from GET /api/config before dialing.
type ClientConfig struct {
	RingTimeoutMS int64    `json:"ring_timeout_ms"`
	ICEServers    []string `json:"ice_servers"`
}

func NewClientConfig(ring time.Duration, iceServers []string) ClientConfig {
	return ClientConfig{RingTimeoutMS: ring.Milliseconds(), ICEServers: iceServers}
}

func (c ClientConfig) RingTimeout() time.Duration {
	return time.Duration(c.RingTimeoutMS) * time.Millisecond
}

// Presence is the online list pushed to every connection.
type Presence struct {
	Online []domain.UserID `json:"online"`
}

// ErrorBody is sent for requests the relay refuses outright.
type ErrorBody struct {
	Error string `json:"error"`
}
