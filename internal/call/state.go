package call

import (
	"errors"

	"github.com/dkeye/Ring/internal/domain"
)

type State int

const (
	Idle State = iota
	Outgoing
	Incoming
	Negotiating
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Negotiating:
		return "negotiating"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// inCall reports whether a call is underway, ringing included.
func (s State) inCall() bool {
	return s == Outgoing || s == Incoming || s == Negotiating || s == Active
}

type Role int

const (
	RoleNone Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	}
	return "none"
}

// TransportState is the peer transport's connection state.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (t TransportState) String() string {
	return [...]string{"new", "connecting", "connected", "disconnected", "failed", "closed"}[t]
}

func (t TransportState) down() bool {
	return t == TransportDisconnected || t == TransportFailed || t == TransportClosed
}

var (
	ErrBusy        = errors.New("already in a call")
	ErrRejected    = errors.New("call rejected")
	ErrRingTimeout = errors.New("no answer")
	ErrSelfCall    = errors.New("cannot call yourself")
	ErrStopped     = errors.New("phone stopped")
)

// Snapshot is what a UI renders. EndReason and Err describe the most recent
// call once it has ended and stay set until the next call starts.
type Snapshot struct {
	State            State
	CallID           string
	Peer             domain.UserID
	Role             Role
	MicMuted         bool
	CameraOff        bool
	RemoteVideo      bool
	LocalCandidates  int
	RemoteCandidates int
	EndReason        string
	Err              error
}

// Hooks are called from the phone loop. They must not block.
type Hooks struct {
	OnState func(Snapshot)
	OnError func(error)
}
