// Package signaling defines the relay wire protocol: event names, the envelope
// every frame travels in, and the typed bodies of call-setup messages.
package signaling

// Event is the "type" field of a frame on the wire.
type Event string

// Client → relay.
const (
	EventAddUser      Event = "add-user"
	EventSendMsg      Event = "send-msg"
	EventCallUser     Event = "call-user"
	EventAcceptCall   Event = "accept-call"
	EventRejectCall   Event = "reject-call"
	EventEndCall      Event = "end-call"
	EventOffer        Event = "offer"
	EventAnswer       Event = "answer"
	EventICECandidate Event = "ice-candidate"
	EventPing         Event = "ping"
)

// Relay → client. msg-recieve keeps the spelling existing browser clients listen for.
const (
	EventMsgReceive      Event = "msg-recieve"
	EventIncomingCall    Event = "incoming-call"
	EventCallAccepted    Event = "call-accepted"
	EventCallRejected    Event = "call-rejected"
	EventCallEnded       Event = "call-ended"
	EventDeliveryFailure Event = "delivery-failure"
	EventPresence        Event = "presence"
	EventPong            Event = "pong"
	EventError           Event = "error"
)

// Kind is the relay-level classification of a forwardable message.
type Kind string

const (
	KindChat         Kind = "chat"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	KindCallInitiate Kind = "call-initiate"
	KindCallAccept   Kind = "call-accept"
	KindCallReject   Kind = "call-reject"
	KindCallEnd      Kind = "call-end"
)

type route struct {
	in  Event
	out Event
}

var routes = map[Kind]route{
	KindChat:         {EventSendMsg, EventMsgReceive},
	KindOffer:        {EventOffer, EventOffer},
	KindAnswer:       {EventAnswer, EventAnswer},
	KindICECandidate: {EventICECandidate, EventICECandidate},
	KindCallInitiate: {EventCallUser, EventIncomingCall},
	KindCallAccept:   {EventAcceptCall, EventCallAccepted},
	KindCallReject:   {EventRejectCall, EventCallRejected},
	KindCallEnd:      {EventEndCall, EventCallEnded},
}

var (
	byInbound  = make(map[Event]Kind, len(routes))
	byOutbound = make(map[Event]Kind, len(routes))
)

func init() {
	for k, r := range routes {
		byInbound[r.in] = k
		byOutbound[r.out] = k
	}
}

// Valid reports whether k is one of the recognized kinds.
func (k Kind) Valid() bool {
	_, ok := routes[k]
	return ok
}

// Inbound is the event a client sends to have a message of kind k relayed.
func (k Kind) Inbound() Event { return routes[k].in }

// Outbound is the event the relay emits to the destination for kind k.
func (k Kind) Outbound() Event { return routes[k].out }

// KindOfInbound maps a client→relay event to the kind it carries.
func KindOfInbound(e Event) (Kind, bool) {
	k, ok := byInbound[e]
	return k, ok
}

// KindOfOutbound maps a relay→client event back to its kind.
func KindOfOutbound(e Event) (Kind, bool) {
	k, ok := byOutbound[e]
	return k, ok
}
