package app_test

import (
	"sync"
	"testing"

	"github.com/dkeye/Ring/internal/app"
	"github.com/dkeye/Ring/internal/core"
	mock_core "github.com/dkeye/Ring/internal/core/mock"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// inbox records every frame a mocked connection was asked to send.
type inbox struct {
	mu     sync.Mutex
	frames []*signaling.Envelope
}

func (in *inbox) all() []*signaling.Envelope {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]*signaling.Envelope(nil), in.frames...)
}

func (in *inbox) ofType(t signaling.Event) []*signaling.Envelope {
	var out []*signaling.Envelope
	for _, env := range in.all() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func recordingConn(t *testing.T, ctrl *gomock.Controller) (*mock_core.MockSignalConnection, *inbox) {
	t.Helper()
	m := mock_core.NewMockSignalConnection(ctrl)
	in := &inbox{}
	m.EXPECT().TrySend(gomock.Any()).DoAndReturn(func(f core.Frame) error {
		env, err := signaling.Decode(f)
		require.NoError(t, err)
		in.mu.Lock()
		in.frames = append(in.frames, env)
		in.mu.Unlock()
		return nil
	}).AnyTimes()
	return m, in
}

func silentConn(ctrl *gomock.Controller) *mock_core.MockSignalConnection {
	m := mock_core.NewMockSignalConnection(ctrl)
	m.EXPECT().TrySend(gomock.Any()).Times(0)
	return m
}

func newRelay() *app.Relay {
	return &app.Relay{
		Presence: app.NewPresence(),
		Conns:    app.NewDirectory(0),
		Policy:   app.DisconnectSlow{},
	}
}

// online connects user and registers presence through an add-user frame.
func online(t *testing.T, r *app.Relay, user domain.UserID, sig core.SignalConnection) core.ConnID {
	t.Helper()
	id, err := r.Connect(user, sig)
	require.NoError(t, err)
	r.HandleFrame(id, frame(t, signaling.EventAddUser, "", signaling.AddUser{UserID: user}))
	return id
}

func frame(t *testing.T, e signaling.Event, to domain.UserID, body any) core.Frame {
	t.Helper()
	env, err := signaling.NewEnvelope(e, to, body)
	require.NoError(t, err)
	b, err := env.Encode()
	require.NoError(t, err)
	return b
}
