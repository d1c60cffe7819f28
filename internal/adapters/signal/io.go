package signal

import (
	"context"
	"time"

	"github.com/dkeye/Ring/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (c *WsSignalConn) writePump(ctx context.Context, id core.ConnID, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(id)).Msg("writePump ctx done")
			return
		case <-c.done:
			return
		case <-c.out.ready:
			for _, f := range c.out.drain() {
				if err := c.write(websocket.TextMessage, f); err != nil {
					log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump write error")
					return
				}
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump ping")
				return
			}
		}
	}
}

func (c *WsSignalConn) write(mt int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(mt, data)
}

// readPump hands every text frame to handle in arrival order. It returns when
// the peer goes away or ctx ends.
func (c *WsSignalConn) readPump(ctx context.Context, id core.ConnID, readLimit int64, pingPeriod time.Duration, handle func(core.Frame)) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		c.Close()
	}()

	pongWait := pingPeriod * 10 / 9
	if readLimit > 0 {
		c.conn.SetReadLimit(readLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(core.Frame(data))
	}
}
