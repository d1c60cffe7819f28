package signal

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Ring/internal/app"
	"github.com/dkeye/Ring/internal/core"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type SignalWSController struct {
	Relay      *app.Relay
	ReadLimit  int64
	PingPeriod time.Duration
	SendQueue  int
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and attaches the socket to the relay as user.
// When the directory is full it answers 503 without upgrading.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, user domain.UserID) {
	if ctl.Relay.Conns.Full() {
		log.Warn().Str("module", "signal").Str("user", string(user)).Msg("directory full, refusing upgrade")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": domain.ErrDirectoryFull.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := NewWsSignalConn(ws, ctl.SendQueue)
	id, err := ctl.Relay.Connect(user, conn)
	if err != nil {
		// Lost the race for the last slot after the precheck.
		if errors.Is(err, domain.ErrDirectoryFull) {
			msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		_ = ws.Close()
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("user", string(user)).Msg("new WS connection")

	ctl.Serve(ctx, id, conn)
}

// Serve runs both pumps for an admitted connection and disconnects it from the
// relay when the read side ends.
func (ctl *SignalWSController) Serve(ctx context.Context, id core.ConnID, conn *WsSignalConn) {
	ping := ctl.PingPeriod
	if ping <= 0 {
		ping = 54 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	go conn.writePump(ctx, id, ping)
	go func() {
		defer cancel()
		defer ctl.Relay.Disconnect(id)
		conn.readPump(ctx, id, ctl.ReadLimit, ping, func(f core.Frame) {
			ctl.Relay.HandleFrame(id, f)
		})
	}()
}
