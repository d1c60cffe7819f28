package app

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog/log"
)

// PresenceFeed pushes the online list to every connection after presence
// settles. Bursts of registrations collapse into one broadcast.
type PresenceFeed struct {
	presence  *Presence
	conns     *Directory
	debounced func(func())
	worker    *workerpool.WorkerPool

	mu      sync.Mutex
	stopped bool
}

func NewPresenceFeed(presence *Presence, conns *Directory, wait time.Duration) *PresenceFeed {
	return &PresenceFeed{
		presence:  presence,
		conns:     conns,
		debounced: debounce.New(wait),
		worker:    workerpool.New(1),
	}
}

// Changed schedules a broadcast.
func (f *PresenceFeed) Changed() {
	f.debounced(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.stopped {
			return
		}
		f.worker.Submit(f.Broadcast)
	})
}

// Broadcast sends the current online list to every live connection now.
func (f *PresenceFeed) Broadcast() {
	env, err := signaling.NewEnvelope(signaling.EventPresence, "", signaling.Presence{Online: f.presence.Online()})
	if err != nil {
		log.Error().Err(err).Str("module", "app.feed").Msg("presence envelope")
		return
	}
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.feed").Msg("presence encode")
		return
	}
	sent := 0
	for _, c := range f.conns.Snapshot() {
		if err := c.Signal.TrySend(frame); err != nil {
			log.Debug().Err(err).Str("module", "app.feed").Str("conn", string(c.ID)).Msg("presence skipped")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.feed").Int("sent_to", sent).Msg("presence broadcast")
}

// Stop waits for a queued broadcast to finish. Later changes are ignored.
func (f *PresenceFeed) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.worker.StopWait()
}
