package mesh

import (
	"encoding/json"
	"sync"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

// eventQueue is an unbounded FIFO so transport callbacks never block.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	ready  chan struct{}
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
}

// Session drives the handshake with one remote peer. Its events are applied
// one at a time, in the order they were queued, by a dedicated goroutine.
type Session struct {
	peer string
	mgr  *Manager

	queue *eventQueue
	done  chan struct{}

	mu         sync.Mutex
	state      State
	role       Role
	lastErr    error
	transport  Transport
	generation int
}

func newSession(mgr *Manager, peer string, role Role) *Session {
	s := &Session{
		peer:  peer,
		mgr:   mgr,
		role:  role,
		queue: newEventQueue(),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Peer returns the remote connection id.
func (s *Session) Peer() string {
	return s.peer
}

// State returns the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role returns the side this session plays.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Err returns the reason the session failed, if it did.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send writes an application frame to the peer.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	t, state := s.transport, s.state
	s.mu.Unlock()

	if t == nil || state != StateEstablished {
		return NewError("send", s.peer, ErrChannelNotOpen)
	}
	return t.Send(data)
}

func (s *Session) enqueue(ev Event) bool {
	return s.queue.push(ev)
}

func (s *Session) run() {
	defer close(s.done)
	defer s.queue.close()

	for range s.queue.ready {
		for _, ev := range s.queue.drain() {
			s.apply(ev)
			if s.State() == StateClosed {
				return
			}
		}
	}
}

func (s *Session) apply(ev Event) {
	s.mu.Lock()
	stale := ev.generation != 0 && ev.generation != s.generation
	prev := s.state
	s.mu.Unlock()

	if stale {
		return
	}

	if kind, remote := remoteKind(ev.Kind); remote && s.mgr.hook != nil {
		body, err := s.mgr.hook.Open(kind, ev.Body)
		if err != nil {
			ev = Event{Kind: EventRejected, Err: WrapError("verify "+string(kind), s.peer, ErrRejected, err.Error())}
		} else {
			ev.Body = body
		}
	}

	next, actions, err := Transition(prev, ev)
	if err != nil {
		s.mgr.logger.Warn("ignoring handshake event", "peer", s.peer, "state", prev, "event", ev.Kind, "err", err)
		return
	}

	s.mu.Lock()
	s.state = next
	if next == StateFailed && ev.Err != nil {
		s.lastErr = ev.Err
	}
	s.mu.Unlock()

	var followUp *Event
	for _, a := range actions {
		f, err := s.do(a, ev)
		if err != nil {
			s.apply(Event{Kind: EventPathFailed, Err: err})
			return
		}
		if f != nil {
			followUp = f
		}
	}

	if next != prev {
		s.mgr.logger.Debug("session state changed", "peer", s.peer, "from", prev, "to", next, "event", ev.Kind)
		s.mgr.notify(Notification{Peer: s.peer, Role: s.Role(), State: next, Err: s.Err()})
	}

	if followUp != nil {
		s.apply(*followUp)
	}
}

func (s *Session) do(a Action, ev Event) (*Event, error) {
	switch a {
	case ActionSendOffer:
		t, err := s.ensureTransport()
		if err != nil {
			return nil, err
		}
		offer, err := t.CreateOffer()
		if err != nil {
			return nil, NewError("create offer", s.peer, err)
		}
		return nil, s.relay(protocol.KindOffer, offer)

	case ActionAnswerOffer:
		t, err := s.ensureTransport()
		if err != nil {
			return nil, err
		}
		answer, err := t.AcceptOffer(ev.Body)
		if err != nil {
			return nil, NewError("accept offer", s.peer, err)
		}
		if err := s.relay(protocol.KindAnswer, answer); err != nil {
			return nil, err
		}
		return &Event{Kind: EventAnswerSent}, nil

	case ActionApplyAnswer:
		t := s.currentTransport()
		if t == nil {
			return nil, NewError("accept answer", s.peer, ErrNoSession)
		}
		if err := t.AcceptAnswer(ev.Body); err != nil {
			return nil, NewError("accept answer", s.peer, err)
		}

	case ActionAddCandidate:
		t := s.currentTransport()
		if t == nil {
			return nil, nil
		}
		if err := t.AddCandidate(ev.Body); err != nil {
			s.mgr.logger.Warn("candidate not applied", "peer", s.peer, "err", err)
		}

	case ActionSendCandidate:
		return nil, s.relay(protocol.KindCandidate, ev.Body)

	case ActionResetTransport:
		s.closeTransport()
		s.mu.Lock()
		s.role = RoleResponder
		s.mu.Unlock()
		s.mgr.logger.Info("offer glare, yielding initiator role", "peer", s.peer)

	case ActionTeardown:
		s.closeTransport()

	case ActionNotifyEstablished:
		s.mgr.logger.Info("session established", "peer", s.peer, "role", s.Role())

	case ActionNotifyFailed:
		s.mgr.logger.Warn("session failed", "peer", s.peer, "err", ev.Err)
	}
	return nil, nil
}

func (s *Session) relay(kind protocol.SignalKind, body json.RawMessage) error {
	if s.mgr.hook != nil {
		sealed, err := s.mgr.hook.Seal(kind, body)
		if err != nil {
			return NewError("seal "+string(kind), s.peer, err)
		}
		body = sealed
	}
	if err := s.mgr.signaler.Relay(kind, s.peer, body); err != nil {
		return NewError("relay "+string(kind), s.peer, err)
	}
	return nil
}

func (s *Session) ensureTransport() (Transport, error) {
	if t := s.currentTransport(); t != nil {
		return t, nil
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	role := s.role
	s.mu.Unlock()

	events := TransportEvents{
		LocalCandidate: func(c json.RawMessage) {
			s.enqueue(Event{Kind: EventLocalCandidate, Body: c, generation: gen})
		},
		Connected: func() {
			s.enqueue(Event{Kind: EventConnected, generation: gen})
		},
		Failed: func(err error) {
			s.enqueue(Event{Kind: EventPathFailed, Err: NewError("negotiate path", s.peer, err), generation: gen})
		},
		Message: func(data []byte) {
			s.mgr.receive(s.peer, data)
		},
	}

	t, err := s.mgr.newTransport(s.peer, role, events)
	if err != nil {
		return nil, NewError("create transport", s.peer, err)
	}

	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
	return t, nil
}

func (s *Session) currentTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *Session) closeTransport() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		s.mgr.logger.Debug("transport close", "peer", s.peer, "err", err)
	}
}

// remoteKind maps events that carry a relayed body to their signal kind.
func remoteKind(k EventKind) (protocol.SignalKind, bool) {
	switch k {
	case EventOffer:
		return protocol.KindOffer, true
	case EventAnswer:
		return protocol.KindAnswer, true
	case EventCandidate:
		return protocol.KindCandidate, true
	}
	return "", false
}
