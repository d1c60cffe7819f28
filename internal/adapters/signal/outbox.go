package signal

import (
	"errors"
	"sync"

	"github.com/dkeye/Ring/internal/core"
	"github.com/gammazero/deque"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// outbox is the ordered queue of frames waiting for the write pump.
// A limit <= 0 means unbounded.
type outbox struct {
	mu     sync.Mutex
	q      deque.Deque[core.Frame]
	limit  int
	closed bool
	ready  chan struct{}
}

func newOutbox(limit int) *outbox {
	o := &outbox{limit: limit, ready: make(chan struct{}, 1)}
	o.q.SetBaseCap(16)
	return o
}

func (o *outbox) push(f core.Frame) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.limit > 0 && o.q.Len() >= o.limit {
		o.mu.Unlock()
		return ErrBackpressure
	}
	o.q.PushBack(f)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return nil
}

// drain pops everything queued so far, oldest first.
func (o *outbox) drain() []core.Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]core.Frame, 0, o.q.Len())
	for o.q.Len() > 0 {
		out = append(out, o.q.PopFront())
	}
	return out
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.q.Clear()
	o.mu.Unlock()
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.q.Len()
}
