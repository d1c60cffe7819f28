package app_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Ring/internal/app"
	"github.com/dkeye/Ring/internal/core"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceLastRegistrationWins(t *testing.T) {
	p := app.NewPresence()

	_, replaced := p.Register("u", "c1")
	assert.False(t, replaced)
	prev, replaced := p.Register("u", "c2")
	assert.True(t, replaced)
	assert.Equal(t, core.ConnID("c1"), prev)

	got, ok := p.Resolve("u")
	require.True(t, ok)
	assert.Equal(t, core.ConnID("c2"), got)
}

func TestPresenceRegisterSameHandleIsNotReplacement(t *testing.T) {
	p := app.NewPresence()
	p.Register("u", "c1")
	_, replaced := p.Register("u", "c1")
	assert.False(t, replaced)
}

func TestPresenceRemove(t *testing.T) {
	p := app.NewPresence()
	p.Register("u", "c1")
	p.Register("v", "c2")

	gone := p.Remove("c1")
	assert.Equal(t, []domain.UserID{"u"}, gone)

	_, ok := p.Resolve("u")
	assert.False(t, ok)
	_, ok = p.Resolve("v")
	assert.True(t, ok)
}

func TestPresenceRemoveStaleHandleKeepsNewerRegistration(t *testing.T) {
	p := app.NewPresence()
	p.Register("u", "c1")
	p.Register("u", "c2")

	assert.Empty(t, p.Remove("c1"))
	got, ok := p.Resolve("u")
	require.True(t, ok)
	assert.Equal(t, core.ConnID("c2"), got)
}

func TestPresenceOnlineIsSorted(t *testing.T) {
	p := app.NewPresence()
	p.Register("carol", "c3")
	p.Register("alice", "c1")
	p.Register("bob", "c2")

	assert.Equal(t, []domain.UserID{"alice", "bob", "carol"}, p.Online())
	assert.Equal(t, 3, p.Len())
}

func TestPresenceConcurrentAccess(t *testing.T) {
	p := app.NewPresence()
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := domain.UserID(fmt.Sprintf("u%d", i%4))
			c := core.ConnID(fmt.Sprintf("c%d", i))
			p.Register(u, c)
			p.Resolve(u)
			p.Online()
			p.Remove(c)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, p.Len())
}
