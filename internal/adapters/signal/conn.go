package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Ring/internal/core"
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// WsSignalConn implements core.SignalConnection over a websocket.
type WsSignalConn struct {
	conn WSConn
	out  *outbox
	done chan struct{}
	once sync.Once
}

func NewWsSignalConn(conn WSConn, queue int) *WsSignalConn {
	return &WsSignalConn{
		conn: conn,
		out:  newOutbox(queue),
		done: make(chan struct{}),
	}
}

// TrySend queues f behind every frame queued before it.
func (c *WsSignalConn) TrySend(f core.Frame) error {
	return c.out.push(f)
}

func (c *WsSignalConn) Close() {
	c.once.Do(func() {
		c.out.close()
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done is closed once the connection is closed.
func (c *WsSignalConn) Done() <-chan struct{} { return c.done }
