package mesh

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

// Notification reports session progress and application data to the
// embedding program. Exactly one of State or Chat is meaningful.
type Notification struct {
	Peer  string
	Role  Role
	State State
	Err   error

	Chat *ChatMessage
}

// Options configures a Manager.
type Options struct {
	// LocalID is our own connection id; it breaks offer glare ties.
	LocalID string

	Signaler     Signaler
	NewTransport TransportFactory

	// Hook, if set, wraps every relayed handshake body.
	Hook Hook

	// Notify receives state changes and chat lines. It is called from
	// session goroutines and must not block for long.
	Notify func(Notification)

	Logger *slog.Logger
}

// SessionInfo is a snapshot of one session.
type SessionInfo struct {
	Peer  string
	Role  Role
	State State
	Err   error
}

// Manager owns one Session per known remote peer.
type Manager struct {
	localID      string
	signaler     Signaler
	newTransport TransportFactory
	hook         Hook
	notifyFn     func(Notification)
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	roster   []string
	closed   bool
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Signaler == nil {
		return nil, errors.New("mesh: signaler is required")
	}
	if opts.NewTransport == nil {
		return nil, errors.New("mesh: transport factory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		localID:      opts.LocalID,
		signaler:     opts.Signaler,
		newTransport: opts.NewTransport,
		hook:         opts.Hook,
		notifyFn:     opts.Notify,
		logger:       logger,
		sessions:     make(map[string]*Session),
	}, nil
}

// LocalID returns our own connection id.
func (m *Manager) LocalID() string {
	return m.localID
}

// OnSnapshot records the members that were present when we joined. They
// will contact us; no session is created until they do.
func (m *Manager) OnSnapshot(peerIDs []string) {
	m.mu.Lock()
	m.roster = append([]string(nil), peerIDs...)
	m.mu.Unlock()
	m.logger.Info("joined room", "peers", len(peerIDs))
}

// Roster returns the peers listed in the room snapshot.
func (m *Manager) Roster() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.roster...)
}

// OnPeerDiscovered starts a handshake as initiator with a newly joined peer.
func (m *Manager) OnPeerDiscovered(peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if _, ok := m.sessions[peerID]; ok {
		return NewError("discover", peerID, ErrSessionExists)
	}

	s := newSession(m, peerID, RoleInitiator)
	m.sessions[peerID] = s
	s.enqueue(Event{Kind: EventDiscovered})
	return nil
}

// OnOfferReceived answers a remote offer, creating a responder session when
// none exists. An offer that collides with our own is settled by id order;
// an offer for a session past that point is ErrUnexpectedEvent.
func (m *Manager) OnOfferReceived(fromID string, offer json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	s, ok := m.sessions[fromID]
	if !ok {
		s = newSession(m, fromID, RoleResponder)
		m.sessions[fromID] = s
	} else if state := s.State(); state != StateIdle && state != StateOfferSent && !state.Terminal() {
		// Only a pending offer of our own may collide with theirs.
		return WrapError("offer", fromID, ErrUnexpectedEvent, state.String())
	}
	s.enqueue(Event{Kind: EventOffer, Body: offer, RemoteWins: fromID < m.localID})
	return nil
}

// OnAnswerReceived applies the answer to our offer.
func (m *Manager) OnAnswerReceived(fromID string, answer json.RawMessage) error {
	return m.feed("answer", fromID, Event{Kind: EventAnswer, Body: answer})
}

// OnCandidateReceived feeds a remote candidate to the session's path
// negotiation. Candidates after establishment are ignored.
func (m *Manager) OnCandidateReceived(fromID string, candidate json.RawMessage) error {
	return m.feed("candidate", fromID, Event{Kind: EventCandidate, Body: candidate})
}

// OnPeerGone tears down the session with peerID and waits for its transport
// to be released. Calling it again is a no-op.
func (m *Manager) OnPeerGone(peerID string) {
	m.mu.Lock()
	s, ok := m.sessions[peerID]
	delete(m.sessions, peerID)
	m.roster = removeID(m.roster, peerID)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.enqueue(Event{Kind: EventGone})
	<-s.Done()
}

// HandleSignal routes a relayed handshake message by kind.
func (m *Manager) HandleSignal(kind protocol.SignalKind, fromID string, body json.RawMessage) error {
	switch kind {
	case protocol.KindOffer:
		return m.OnOfferReceived(fromID, body)
	case protocol.KindAnswer:
		return m.OnAnswerReceived(fromID, body)
	case protocol.KindCandidate:
		return m.OnCandidateReceived(fromID, body)
	}
	return WrapError("signal", fromID, ErrUnexpectedEvent, string(kind))
}

// Broadcast sends a chat line to every established peer and returns how
// many accepted it.
func (m *Manager) Broadcast(text string) (int, error) {
	data, err := EncodeChat(text, time.Now())
	if err != nil {
		return 0, err
	}

	var sent int
	var errs []error
	for _, s := range m.snapshotSessions() {
		if s.State() != StateEstablished {
			continue
		}
		if err := s.Send(data); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Sessions lists every live session sorted by peer id.
func (m *Manager) Sessions() []SessionInfo {
	sessions := m.snapshotSessions()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{Peer: s.Peer(), Role: s.Role(), State: s.State(), Err: s.Err()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Peer < infos[j].Peer })
	return infos
}

// Session returns the session with peerID, if one exists.
func (m *Manager) Session(peerID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[peerID]
	return s, ok
}

// Close tears down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.enqueue(Event{Kind: EventGone})
	}
	for _, s := range sessions {
		<-s.Done()
	}
}

func (m *Manager) feed(op, peerID string, ev Event) error {
	m.mu.Lock()
	s, ok := m.sessions[peerID]
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrManagerClosed
	}
	if !ok {
		return NewError(op, peerID, ErrNoSession)
	}
	s.enqueue(ev)
	return nil
}

func (m *Manager) snapshotSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *Manager) notify(n Notification) {
	if m.notifyFn != nil {
		m.notifyFn(n)
	}
}

// receive decodes an application frame from a peer's data channel.
func (m *Manager) receive(peerID string, data []byte) {
	frame, err := ParseFrame(data)
	if err != nil {
		m.logger.Warn("malformed data channel frame", "peer", peerID, "err", err)
		return
	}

	switch frame.Type {
	case FrameTypeChat:
		var chat ChatMessage
		if err := frame.DecodePayload(&chat); err != nil {
			m.logger.Warn("malformed chat frame", "peer", peerID, "err", err)
			return
		}
		m.notify(Notification{Peer: peerID, State: StateEstablished, Chat: &chat})
	default:
		m.logger.Debug("unknown frame type", "peer", peerID, "type", frame.Type)
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
