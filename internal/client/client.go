// Package client is the participant side of the signaling socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/Ring/internal/call"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// Handler receives what the relay pushes. Nil fields are skipped.
type Handler struct {
	// Signal gets call signaling and delivery failures.
	Signal   func(env *signaling.Envelope)
	Presence func(online []domain.UserID)
	Chat     func(from domain.UserID, msg string)
}

// Client implements call.Signaler over one websocket.
type Client struct {
	user     domain.UserID
	ws       *websocket.Conn
	settings signaling.ClientConfig

	wmu sync.Mutex
}

// Dial logs in as user on server (an http:// or https:// base URL), opens the
// signaling socket and announces presence.
func Dial(ctx context.Context, server string, user domain.UserID) (*Client, error) {
	base, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Jar: jar, Timeout: 10 * time.Second}
	if err := login(ctx, hc, base, user); err != nil {
		return nil, err
	}
	settings, err := fetchConfig(ctx, hc, base)
	if err != nil {
		return nil, err
	}

	wsURL := *base
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = "/api/ws/signal"

	d := websocket.Dialer{Jar: jar, HandshakeTimeout: 10 * time.Second}
	ws, resp, err := d.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return nil, domain.ErrDirectoryFull
		}
		return nil, fmt.Errorf("dial signaling: %w", err)
	}

	c := &Client{user: user, ws: ws, settings: settings}
	if err := c.write(signaling.EventAddUser, "", signaling.AddUser{UserID: user}); err != nil {
		_ = ws.Close()
		return nil, err
	}
	log.Info().Str("module", "client").Str("user", user.String()).Str("server", base.Host).Msg("connected")
	return c, nil
}

func login(ctx context.Context, hc *http.Client, base *url.URL, user domain.UserID) error {
	body, err := json.Marshal(map[string]string{"user_id": user.String()})
	if err != nil {
		return err
	}
	u := *base
	u.Path = "/api/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login: %s", resp.Status)
	}
	return nil
}

func fetchConfig(ctx context.Context, hc *http.Client, base *url.URL) (signaling.ClientConfig, error) {
	var cfg signaling.ClientConfig
	u := *base
	u.Path = "/api/config"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return cfg, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return cfg, fmt.Errorf("config: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Client) User() domain.UserID { return c.user }

// Settings are the server's ring timeout and ICE servers, read at Dial.
func (c *Client) Settings() signaling.ClientConfig { return c.settings }

// Send implements call.Signaler.
func (c *Client) Send(kind signaling.Kind, to domain.UserID, body any) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: kind %q", domain.ErrMalformedMessage, kind)
	}
	return c.write(kind.Inbound(), to, body)
}

func (c *Client) SendChat(to domain.UserID, msg string) error {
	return c.Send(signaling.KindChat, to, signaling.Chat{Msg: msg})
}

func (c *Client) write(t signaling.Event, to domain.UserID, body any) error {
	env, err := signaling.NewEnvelope(t, to, body)
	if err != nil {
		return err
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportDisconnected, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportDisconnected, err)
	}
	return nil
}

// Listen reads until the socket closes or ctx ends. The returned error wraps
// domain.ErrTransportDisconnected unless ctx was cancelled.
func (c *Client) Listen(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrTransportDisconnected, err)
		}
		env, err := signaling.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("dropped")
			continue
		}
		c.dispatch(env, h)
	}
}

// Run drives phone with the signals read from c until ctx ends, the phone
// stops or the socket drops. The socket stays open until the phone loop has
// returned, so the teardown it sends on cancellation reaches the relay.
// Signals go to phone; h.Signal is ignored.
func (c *Client) Run(ctx context.Context, phone *call.Phone, h Handler) error {
	phoneCtx, stopPhone := context.WithCancel(ctx)
	defer stopPhone()
	listenCtx, stopListen := context.WithCancel(context.Background())
	defer stopListen()

	done := make(chan struct{})
	go func() {
		phone.Run(phoneCtx)
		close(done)
	}()

	h.Signal = func(env *signaling.Envelope) {
		if err := phone.HandleSignal(env); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("type", string(env.Type)).Msg("signal ignored")
		}
	}
	lost := make(chan error, 1)
	go func() { lost <- c.Listen(listenCtx, h) }()

	select {
	case <-done:
		stopListen()
		if err := <-lost; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case err := <-lost:
		stopPhone()
		<-done
		return err
	}
}

func (c *Client) dispatch(env *signaling.Envelope, h Handler) {
	switch env.Type {
	case signaling.EventPresence:
		var p signaling.Presence
		if err := env.DecodeBody(&p); err == nil && h.Presence != nil {
			h.Presence(p.Online)
		}
	case signaling.EventMsgReceive:
		var m signaling.Chat
		if err := env.DecodeBody(&m); err == nil && h.Chat != nil {
			h.Chat(env.From, m.Msg)
		}
	case signaling.EventPong:
	case signaling.EventError:
		var e signaling.ErrorBody
		_ = env.DecodeBody(&e)
		log.Warn().Str("module", "client").Str("error", e.Error).Msg("relay refused a frame")
	default:
		if h.Signal != nil {
			h.Signal(env)
		}
	}
}

func (c *Client) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		_ = c.ws.Close()
		return err
	}
	return c.ws.Close()
}
