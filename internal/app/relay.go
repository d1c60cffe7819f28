package app

import (
	"errors"

	"github.com/dkeye/Ring/internal/core"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

var errRateLimited = errors.New("rate limited")

// Relay forwards signaling between live connections. It keeps no per-call state.
// Limiter and Feed are optional.
type Relay struct {
	Presence *Presence
	Conns    *Directory
	Policy   Policy
	Limiter  *RateLimiter
	Feed     *PresenceFeed
}

// Connect admits a transport authenticated as user.
func (r *Relay) Connect(user domain.UserID, sig core.SignalConnection) (core.ConnID, error) {
	return r.Conns.Add(user, sig)
}

// Disconnect forgets conn and every presence entry pointing at it. Idempotent.
func (r *Relay) Disconnect(conn core.ConnID) {
	r.Conns.Remove(conn)
	gone := r.Presence.Remove(conn)
	if len(gone) == 0 {
		return
	}
	if r.Limiter != nil {
		for _, u := range gone {
			r.Limiter.Forget(u)
		}
	}
	if r.Feed != nil {
		r.Feed.Changed()
	}
}

// HandleFrame processes one inbound frame read from conn.
func (r *Relay) HandleFrame(conn core.ConnID, data core.Frame) {
	src, ok := r.Conns.Get(conn)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("conn", string(conn)).Msg("frame from stale connection dropped")
		return
	}
	env, err := signaling.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("conn", string(conn)).Msg("dropped")
		return
	}
	if r.Limiter != nil && !r.Limiter.Allow(src.User) {
		log.Warn().Str("module", "app.relay").Str("user", string(src.User)).Str("type", string(env.Type)).Msg("rate limited")
		r.reply(src, signaling.EventError, signaling.ErrorBody{Error: errRateLimited.Error()})
		return
	}

	switch env.Type {
	case signaling.EventAddUser:
		r.register(src, env)
	case signaling.EventPing:
		r.reply(src, signaling.EventPong, nil)
	default:
		kind, ok := signaling.KindOfInbound(env.Type)
		if !ok {
			log.Warn().Err(domain.ErrMalformedMessage).Str("module", "app.relay").Str("type", string(env.Type)).Msg("unknown kind dropped")
			return
		}
		r.route(src, kind, env)
	}
}

func (r *Relay) register(src Conn, env *signaling.Envelope) {
	var body signaling.AddUser
	if len(env.Body) > 0 {
		if err := env.DecodeBody(&body); err != nil {
			log.Warn().Err(err).Str("module", "app.relay").Str("conn", string(src.ID)).Msg("add-user body ignored")
		}
	}
	if body.UserID != "" && body.UserID != src.User {
		log.Warn().Str("module", "app.relay").Str("claimed", string(body.UserID)).Str("user", string(src.User)).Msg("add-user claim ignored")
	}
	r.Presence.Register(src.User, src.ID)
	if r.Feed != nil {
		r.Feed.Changed()
	}
}

func (r *Relay) route(src Conn, kind signaling.Kind, env *signaling.Envelope) {
	if env.To == "" {
		log.Warn().Err(domain.ErrMalformedMessage).Str("module", "app.relay").Str("kind", string(kind)).Str("user", string(src.User)).Msg("missing destination dropped")
		return
	}

	dst, ok := r.resolve(env.To)
	if !ok {
		log.Info().Str("module", "app.relay").Str("kind", string(kind)).Str("from", string(src.User)).Str("to", string(env.To)).Msg("destination unavailable")
		r.notifyFailure(src, kind, env)
		return
	}

	id := env.ID
	if id == "" {
		id = xid.New().String()
	}
	out := &signaling.Envelope{
		Type: kind.Outbound(),
		ID:   id,
		From: src.User,
		To:   env.To,
		Body: env.Body,
	}
	if !r.deliver(dst, out) {
		r.notifyFailure(src, kind, env)
		return
	}
	log.Debug().Str("module", "app.relay").Str("kind", string(kind)).Str("from", string(src.User)).Str("to", string(env.To)).Str("dst_conn", string(dst.ID)).Msg("forwarded")
}

// resolve requires the presence entry and the directory to agree that the
// destination is live.
func (r *Relay) resolve(user domain.UserID) (Conn, bool) {
	id, ok := r.Presence.Resolve(user)
	if !ok {
		return Conn{}, false
	}
	return r.Conns.Get(id)
}

func (r *Relay) deliver(dst Conn, env *signaling.Envelope) bool {
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode")
		return false
	}
	err = dst.Signal.TrySend(frame)
	if err == nil {
		return true
	}
	action := DropFrame
	if r.Policy != nil {
		action = r.Policy.OnBackpressure(dst, err)
	}
	log.Warn().Err(err).Str("module", "app.relay").Str("conn", string(dst.ID)).Str("user", string(dst.User)).Int("action", int(action)).Msg("send refused")
	if action == Disconnect {
		dst.Signal.Close()
		r.Disconnect(dst.ID)
	}
	return false
}

func (r *Relay) notifyFailure(src Conn, kind signaling.Kind, env *signaling.Envelope) {
	df := signaling.DeliveryFailure{
		Kind:   kind,
		To:     env.To,
		Reason: domain.ErrDestinationUnavailable.Error(),
	}
	if kind != signaling.KindChat {
		df.CallID = signaling.CallIDOf(env.Body)
	}
	r.reply(src, signaling.EventDeliveryFailure, df)
}

func (r *Relay) reply(src Conn, t signaling.Event, body any) {
	env, err := signaling.NewEnvelope(t, src.User, body)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("reply")
		return
	}
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("reply encode")
		return
	}
	if err := src.Signal.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("conn", string(src.ID)).Msg("reply refused")
	}
}
