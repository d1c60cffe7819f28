package app_test

import (
	"testing"
	"time"

	"github.com/dkeye/Ring/internal/app"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPresenceFeedBroadcastsOnlineList(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := newRelay()
	r.Feed = app.NewPresenceFeed(r.Presence, r.Conns, 10*time.Millisecond)
	t.Cleanup(r.Feed.Stop)

	aSig, aIn := recordingConn(t, ctrl)
	bSig, bIn := recordingConn(t, ctrl)
	online(t, r, "alice", aSig)
	online(t, r, "bob", bSig)

	latest := func(in *inbox) []domain.UserID {
		got := in.ofType(signaling.EventPresence)
		if len(got) == 0 {
			return nil
		}
		var p signaling.Presence
		require.NoError(t, got[len(got)-1].DecodeBody(&p))
		return p.Online
	}

	want := []domain.UserID{"alice", "bob"}
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, latest(aIn)) && assert.ObjectsAreEqual(want, latest(bIn))
	}, time.Second, 5*time.Millisecond)
}

func TestPresenceFeedStopIgnoresLateChanges(t *testing.T) {
	r := newRelay()
	feed := app.NewPresenceFeed(r.Presence, r.Conns, time.Millisecond)
	feed.Stop()
	assert.NotPanics(t, func() {
		feed.Changed()
		time.Sleep(10 * time.Millisecond)
	})
}

func TestPresenceFeedChangedDuringStop(t *testing.T) {
	r := newRelay()
	for i := 0; i < 50; i++ {
		feed := app.NewPresenceFeed(r.Presence, r.Conns, 0)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 20; j++ {
				feed.Changed()
			}
		}()
		feed.Stop()
		<-done
	}
	// A debounced submit firing after Stop would panic the timer goroutine.
	time.Sleep(10 * time.Millisecond)
}
