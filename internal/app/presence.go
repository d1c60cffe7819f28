package app

import (
	"slices"
	"sync"

	"github.com/dkeye/Ring/internal/core"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Presence maps a user to the one connection that currently reaches them.
// The last registration wins; there is no multi-device fan-out.
type Presence struct {
	mu    sync.RWMutex
	users map[domain.UserID]core.ConnID
}

func NewPresence() *Presence {
	return &Presence{users: make(map[domain.UserID]core.ConnID)}
}

// Register binds user to conn and returns the handle it replaced, if any.
func (p *Presence) Register(user domain.UserID, conn core.ConnID) (core.ConnID, bool) {
	p.mu.Lock()
	prev, had := p.users[user]
	p.users[user] = conn
	p.mu.Unlock()

	replaced := had && prev != conn
	ev := log.Info().Str("module", "app.presence").Str("user", string(user)).Str("conn", string(conn))
	if replaced {
		ev = ev.Str("replaced", string(prev))
	}
	ev.Msg("registered")
	return prev, replaced
}

// Resolve returns the live connection for user.
func (p *Presence) Resolve(user domain.UserID) (core.ConnID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.users[user]
	return c, ok
}

// Remove unsets every user still mapped to conn and returns them.
// A user re-registered on a newer connection is left alone.
func (p *Presence) Remove(conn core.ConnID) []domain.UserID {
	p.mu.Lock()
	var gone []domain.UserID
	for u, c := range p.users {
		if c == conn {
			delete(p.users, u)
			gone = append(gone, u)
		}
	}
	p.mu.Unlock()

	for _, u := range gone {
		log.Info().Str("module", "app.presence").Str("user", string(u)).Str("conn", string(conn)).Msg("removed")
	}
	return gone
}

// Online returns the reachable users in lexical order.
func (p *Presence) Online() []domain.UserID {
	p.mu.RLock()
	users := lo.Keys(p.users)
	p.mu.RUnlock()
	slices.Sort(users)
	return users
}

func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users)
}
