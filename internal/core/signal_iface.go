package core

//go:generate mockgen -source=signal_iface.go -destination=mock/signal_mock.go -package=mock_core

// Frame is a raw text payload on the signaling transport.
type Frame []byte

// ConnID is the opaque handle of one live transport session.
type ConnID string

// SignalConnection abstracts a client's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues f without blocking. Frames are delivered in enqueue order.
	TrySend(f Frame) error
	Close()
}
