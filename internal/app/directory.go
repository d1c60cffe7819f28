package app

import (
	"sync"
	"time"

	"github.com/dkeye/Ring/internal/core"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Conn is a live transport session and the identity authenticated for it.
type Conn struct {
	ID     core.ConnID
	User   domain.UserID
	Signal core.SignalConnection
	Since  time.Time
}

// Directory is the set of live connections. A non-positive capacity means unbounded.
type Directory struct {
	mu       sync.RWMutex
	conns    map[core.ConnID]*Conn
	capacity int
}

func NewDirectory(capacity int) *Directory {
	return &Directory{
		conns:    make(map[core.ConnID]*Conn),
		capacity: capacity,
	}
}

// Add mints a handle for sig. When full it sheds the connection with ErrDirectoryFull
// and leaves existing entries untouched.
func (d *Directory) Add(user domain.UserID, sig core.SignalConnection) (core.ConnID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capacity > 0 && len(d.conns) >= d.capacity {
		log.Warn().Str("module", "app.directory").Str("user", string(user)).Int("capacity", d.capacity).Msg("shedding connection")
		return "", domain.ErrDirectoryFull
	}
	id := core.ConnID(uuid.NewString())
	d.conns[id] = &Conn{ID: id, User: user, Signal: sig, Since: time.Now()}
	log.Info().Str("module", "app.directory").Str("conn", string(id)).Str("user", string(user)).Msg("connected")
	return id, nil
}

func (d *Directory) Get(id core.ConnID) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.conns[id]
	if !ok {
		return Conn{}, false
	}
	return *c, true
}

// Remove drops id and reports the entry it held.
func (d *Directory) Remove(id core.ConnID) (Conn, bool) {
	d.mu.Lock()
	c, ok := d.conns[id]
	delete(d.conns, id)
	d.mu.Unlock()
	if !ok {
		return Conn{}, false
	}
	log.Info().Str("module", "app.directory").Str("conn", string(id)).Str("user", string(c.User)).Msg("disconnected")
	return *c, true
}

// Snapshot copies the live entries.
func (d *Directory) Snapshot() []Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Conn, 0, len(d.conns))
	for _, c := range d.conns {
		out = append(out, *c)
	}
	return out
}

// Full reports whether Add would shed a new connection right now.
func (d *Directory) Full() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.capacity > 0 && len(d.conns) >= d.capacity
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}
