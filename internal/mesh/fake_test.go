package mesh

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

// fakeNet links managers in-process: relays are delivered to the target
// manager and transports connect when the initiator applies an answer.
type fakeNet struct {
	mu         sync.Mutex
	managers   map[string]*Manager
	transports map[[2]string]*fakeTransport
	held       []heldRelay
	hold       bool
	autoLink   bool
	relays     []heldRelay
}

type heldRelay struct {
	from, to string
	kind     protocol.SignalKind
	body     json.RawMessage
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		managers:   make(map[string]*Manager),
		transports: make(map[[2]string]*fakeTransport),
		autoLink:   true,
	}
}

func (n *fakeNet) signaler(from string) Signaler {
	return signalerFunc(func(kind protocol.SignalKind, to string, body json.RawMessage) error {
		r := heldRelay{from: from, to: to, kind: kind, body: body}
		n.mu.Lock()
		n.relays = append(n.relays, r)
		if n.hold {
			n.held = append(n.held, r)
			n.mu.Unlock()
			return nil
		}
		n.mu.Unlock()
		n.deliver(r)
		return nil
	})
}

func (n *fakeNet) deliver(r heldRelay) {
	n.mu.Lock()
	m := n.managers[r.to]
	n.mu.Unlock()
	if m != nil {
		m.HandleSignal(r.kind, r.from, r.body)
	}
}

// release delivers held relays and stops holding.
func (n *fakeNet) release() {
	n.mu.Lock()
	held := n.held
	n.held = nil
	n.hold = false
	n.mu.Unlock()
	for _, r := range held {
		n.deliver(r)
	}
}

func (n *fakeNet) relayCount(kind protocol.SignalKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, r := range n.relays {
		if r.kind == kind {
			c++
		}
	}
	return c
}

func (n *fakeNet) factory(local string) TransportFactory {
	return func(peer string, role Role, events TransportEvents) (Transport, error) {
		t := &fakeTransport{net: n, local: local, peer: peer, role: role, events: events}
		n.mu.Lock()
		n.transports[[2]string{local, peer}] = t
		n.mu.Unlock()
		return t, nil
	}
}

func (n *fakeNet) transport(local, peer string) *fakeTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transports[[2]string{local, peer}]
}

func (n *fakeNet) addManager(t *testing.T, id string, hook Hook, notify func(Notification)) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		LocalID:      id,
		Signaler:     n.signaler(id),
		NewTransport: n.factory(id),
		Hook:         hook,
		Notify:       notify,
	})
	if err != nil {
		t.Fatalf("NewManager(%s) error = %v", id, err)
	}
	n.mu.Lock()
	n.managers[id] = m
	n.mu.Unlock()
	t.Cleanup(m.Close)
	return m
}

type signalerFunc func(kind protocol.SignalKind, to string, body json.RawMessage) error

func (f signalerFunc) Relay(kind protocol.SignalKind, to string, body json.RawMessage) error {
	return f(kind, to, body)
}

type fakeTransport struct {
	net    *fakeNet
	local  string
	peer   string
	role   Role
	events TransportEvents

	mu      sync.Mutex
	closed  bool
	offered int
	answers []json.RawMessage
	cands   []json.RawMessage
}

type fakeDescription struct {
	Type string `json:"type"`
	From string `json:"from"`
	Seq  int    `json:"seq"`
}

func (t *fakeTransport) CreateOffer() (json.RawMessage, error) {
	t.mu.Lock()
	t.offered++
	seq := t.offered
	t.mu.Unlock()
	t.events.LocalCandidate(json.RawMessage(fmt.Sprintf(`{"candidate":"host %s"}`, t.local)))
	return json.Marshal(fakeDescription{Type: "offer", From: t.local, Seq: seq})
}

func (t *fakeTransport) AcceptOffer(offer json.RawMessage) (json.RawMessage, error) {
	var d fakeDescription
	if err := json.Unmarshal(offer, &d); err != nil {
		return nil, err
	}
	if d.Type != "offer" {
		return nil, fmt.Errorf("expected offer, got %q", d.Type)
	}
	return json.Marshal(fakeDescription{Type: "answer", From: t.local, Seq: d.Seq})
}

func (t *fakeTransport) AcceptAnswer(answer json.RawMessage) error {
	var d fakeDescription
	if err := json.Unmarshal(answer, &d); err != nil {
		return err
	}
	if d.Type != "answer" {
		return fmt.Errorf("expected answer, got %q", d.Type)
	}
	t.mu.Lock()
	t.answers = append(t.answers, answer)
	t.mu.Unlock()

	if t.net.autoLink {
		t.connect()
		if remote := t.net.transport(t.peer, t.local); remote != nil {
			remote.connect()
		}
	}
	return nil
}

func (t *fakeTransport) connect() {
	t.events.Connected()
}

func (t *fakeTransport) AddCandidate(c json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cands = append(t.cands, c)
	return nil
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrChannelNotOpen
	}
	remote := t.net.transport(t.peer, t.local)
	if remote == nil {
		return errors.New("no remote transport")
	}
	remote.events.Message(data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) candidates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cands)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func stateOf(m *Manager, peer string) State {
	s, ok := m.Session(peer)
	if !ok {
		return StateClosed
	}
	return s.State()
}
