package app

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	Disconnect
)

// Policy decides what happens to a destination whose outbound queue refused a frame.
type Policy interface {
	OnBackpressure(dst Conn, err error) BackpressureAction
}

// DisconnectSlow closes lagging destinations: a skipped offer or candidate
// leaves the peer unable to finish negotiation anyway.
type DisconnectSlow struct{}

func (DisconnectSlow) OnBackpressure(Conn, error) BackpressureAction {
	return Disconnect
}
