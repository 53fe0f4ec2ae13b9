package mesh

import "encoding/json"

// State is the handshake state of one peer session.
type State int

const (
	StateIdle State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerExchanged
	StateEstablished
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerExchanged:
		return "answer-exchanged"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether no further handshake progress is possible.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// negotiating covers the states in which remote candidates are applied.
func (s State) negotiating() bool {
	return s == StateOfferSent || s == StateOfferReceived || s == StateAnswerExchanged
}

// Role is the side a session plays in its handshake.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// EventKind enumerates everything that can happen to a session.
type EventKind int

const (
	// EventDiscovered: the coordinator announced a new peer; we initiate.
	EventDiscovered EventKind = iota
	// EventOffer: a remote offer arrived.
	EventOffer
	// EventAnswerSent: our answer to a remote offer was relayed.
	EventAnswerSent
	// EventAnswer: a remote answer arrived.
	EventAnswer
	// EventCandidate: a remote network-path candidate arrived.
	EventCandidate
	// EventLocalCandidate: the transport gathered a local candidate.
	EventLocalCandidate
	// EventConnected: the transport confirmed connectivity.
	EventConnected
	// EventRejected: a received payload failed local verification.
	EventRejected
	// EventPathFailed: negotiation ran out of candidates or the transport broke.
	EventPathFailed
	// EventGone: the peer disconnected from the room.
	EventGone
)

func (k EventKind) String() string {
	switch k {
	case EventDiscovered:
		return "discovered"
	case EventOffer:
		return "offer"
	case EventAnswerSent:
		return "answer-sent"
	case EventAnswer:
		return "answer"
	case EventCandidate:
		return "candidate"
	case EventLocalCandidate:
		return "local-candidate"
	case EventConnected:
		return "connected"
	case EventRejected:
		return "rejected"
	case EventPathFailed:
		return "path-failed"
	case EventGone:
		return "gone"
	}
	return "unknown"
}

// Event is one input to a session's state machine.
type Event struct {
	Kind EventKind

	// Body carries the offer, answer or candidate.
	Body json.RawMessage

	// Err explains EventRejected and EventPathFailed.
	Err error

	// RemoteWins resolves offer glare: set when the remote peer keeps the
	// initiator role.
	RemoteWins bool

	generation int
}

// Action is a side effect the session runner performs after a transition.
type Action int

const (
	ActionSendOffer Action = iota
	ActionAnswerOffer
	ActionApplyAnswer
	ActionAddCandidate
	ActionSendCandidate
	ActionResetTransport
	ActionTeardown
	ActionNotifyEstablished
	ActionNotifyFailed
)

func (a Action) String() string {
	switch a {
	case ActionSendOffer:
		return "send-offer"
	case ActionAnswerOffer:
		return "answer-offer"
	case ActionApplyAnswer:
		return "apply-answer"
	case ActionAddCandidate:
		return "add-candidate"
	case ActionSendCandidate:
		return "send-candidate"
	case ActionResetTransport:
		return "reset-transport"
	case ActionTeardown:
		return "teardown"
	case ActionNotifyEstablished:
		return "notify-established"
	case ActionNotifyFailed:
		return "notify-failed"
	}
	return "unknown"
}

// Transition computes the next state and the actions to run for ev.
// It has no side effects. An error leaves the state unchanged.
func Transition(s State, ev Event) (State, []Action, error) {
	if ev.Kind == EventGone {
		if s == StateClosed {
			return StateClosed, nil, nil
		}
		return StateClosed, []Action{ActionTeardown}, nil
	}

	// Nothing but Gone moves a finished session.
	if s.Terminal() {
		return s, nil, nil
	}

	switch ev.Kind {
	case EventRejected, EventPathFailed:
		return StateFailed, []Action{ActionTeardown, ActionNotifyFailed}, nil

	case EventLocalCandidate:
		if s == StateIdle {
			return s, nil, ErrUnexpectedEvent
		}
		return s, []Action{ActionSendCandidate}, nil

	case EventCandidate:
		if s.negotiating() {
			return s, []Action{ActionAddCandidate}, nil
		}
		if s == StateEstablished {
			return s, nil, nil
		}
		return s, nil, ErrUnexpectedEvent
	}

	switch s {
	case StateIdle:
		switch ev.Kind {
		case EventDiscovered:
			return StateOfferSent, []Action{ActionSendOffer}, nil
		case EventOffer:
			return StateOfferReceived, []Action{ActionAnswerOffer}, nil
		}

	case StateOfferSent:
		switch ev.Kind {
		case EventAnswer:
			return StateAnswerExchanged, []Action{ActionApplyAnswer}, nil
		case EventOffer:
			if ev.RemoteWins {
				return StateOfferReceived, []Action{ActionResetTransport, ActionAnswerOffer}, nil
			}
			return s, nil, nil
		}

	case StateOfferReceived:
		if ev.Kind == EventAnswerSent {
			return StateAnswerExchanged, nil, nil
		}

	case StateAnswerExchanged:
		if ev.Kind == EventConnected {
			return StateEstablished, []Action{ActionNotifyEstablished}, nil
		}

	case StateEstablished:
		if ev.Kind == EventConnected {
			return s, nil, nil
		}
	}

	return s, nil, ErrUnexpectedEvent
}
