package signaling_test

import (
	"testing"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindRoutes(t *testing.T) {
	cases := []struct {
		in   signaling.Event
		kind signaling.Kind
		out  signaling.Event
	}{
		{signaling.EventSendMsg, signaling.KindChat, signaling.EventMsgReceive},
		{signaling.EventCallUser, signaling.KindCallInitiate, signaling.EventIncomingCall},
		{signaling.EventAcceptCall, signaling.KindCallAccept, signaling.EventCallAccepted},
		{signaling.EventRejectCall, signaling.KindCallReject, signaling.EventCallRejected},
		{signaling.EventEndCall, signaling.KindCallEnd, signaling.EventCallEnded},
		{signaling.EventOffer, signaling.KindOffer, signaling.EventOffer},
		{signaling.EventAnswer, signaling.KindAnswer, signaling.EventAnswer},
		{signaling.EventICECandidate, signaling.KindICECandidate, signaling.EventICECandidate},
	}
	for _, tc := range cases {
		t.Run(string(tc.in), func(t *testing.T) {
			k, ok := signaling.KindOfInbound(tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.kind, k)
			assert.Equal(t, tc.out, k.Outbound())
			assert.Equal(t, tc.in, k.Inbound())

			back, ok := signaling.KindOfOutbound(tc.out)
			require.True(t, ok)
			assert.Equal(t, tc.kind, back)
		})
	}
}

func TestKindOfInboundRejectsControlEvents(t *testing.T) {
	for _, e := range []signaling.Event{signaling.EventAddUser, signaling.EventPing, "bogus"} {
		_, ok := signaling.KindOfInbound(e)
		assert.False(t, ok, e)
	}
	assert.False(t, signaling.Kind("bogus").Valid())
	assert.True(t, signaling.KindCallEnd.Valid())
}

func TestDecode(t *testing.T) {
	t.Run("valid frame", func(t *testing.T) {
		env, err := signaling.Decode([]byte(`{"type":"offer","to":"bob","from":"mallory","body":{"sdp":"x"}}`))
		require.NoError(t, err)
		assert.Equal(t, signaling.EventOffer, env.Type)
		assert.Equal(t, domain.UserID("bob"), env.To)
		assert.JSONEq(t, `{"sdp":"x"}`, string(env.Body))
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := signaling.Decode([]byte(`{`))
		assert.ErrorIs(t, err, domain.ErrMalformedMessage)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := signaling.Decode([]byte(`{"to":"bob"}`))
		assert.ErrorIs(t, err, domain.ErrMalformedMessage)
	})
}

func TestDecodeBodyRequiresBody(t *testing.T) {
	env := &signaling.Envelope{Type: signaling.EventCallUser}
	var meta signaling.CallMeta
	assert.ErrorIs(t, env.DecodeBody(&meta), domain.ErrMalformedMessage)
}

func TestNewEnvelopeAssignsID(t *testing.T) {
	a, err := signaling.NewEnvelope(signaling.EventPing, "", nil)
	require.NoError(t, err)
	b, err := signaling.NewEnvelope(signaling.EventPing, "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Empty(t, a.Body)
}
