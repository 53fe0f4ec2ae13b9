package wsclient

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

// Snapshot is the room membership seen on join.
type Snapshot struct {
	RoomID  string
	PeerIDs []string
}

// RoomEventType distinguishes room events.
type RoomEventType int

const (
	PeerJoined RoomEventType = iota
	PeerLeft
	Signal
)

// RoomEvent is a membership change or a relayed handshake message. They are
// delivered in the order the server sent them.
type RoomEvent struct {
	Type RoomEventType
	Peer string

	// Kind and Body are set for Signal events.
	Kind protocol.SignalKind
	Body json.RawMessage
}

// Handler routes incoming server messages to channels.
type Handler struct {
	client *Client
	logger *slog.Logger

	Welcome  chan string
	Snapshot chan *Snapshot
	Room     chan *RoomEvent
	Error    chan string

	stop     chan struct{}
	stopOnce sync.Once
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:   client,
		logger:   client.logger,
		Welcome:  make(chan string, 1),
		Snapshot: make(chan *Snapshot, 1),
		Room:     make(chan *RoomEvent, 64),
		Error:    make(chan string, 8),
		stop:     make(chan struct{}),
	}
}

// Start routes messages until the connection ends or Close is called, then
// closes every handler channel.
func (h *Handler) Start() {
	defer func() {
		close(h.Welcome)
		close(h.Snapshot)
		close(h.Room)
		close(h.Error)
	}()

	for msg := range h.client.Incoming() {
		if !h.route(msg) {
			return
		}
	}
}

// route returns false once the handler has been stopped.
func (h *Handler) route(msg *protocol.Message) bool {
	switch msg.Type {
	case protocol.TypeWelcome:
		var p protocol.WelcomePayload
		if err := msg.DecodePayload(&p); err != nil {
			h.logger.Warn("bad welcome", "err", err)
			return true
		}
		return h.offer(h.Welcome, p.PeerID)

	case protocol.TypeRoomSnapshot:
		var p protocol.SnapshotPayload
		if err := msg.DecodePayload(&p); err != nil {
			h.logger.Warn("bad room snapshot", "err", err)
			return true
		}
		return h.offerSnapshot(&Snapshot{RoomID: msg.RoomID, PeerIDs: p.PeerIDs})

	case protocol.TypePeerJoined, protocol.TypePeerLeft:
		var p protocol.PeerPayload
		if err := msg.DecodePayload(&p); err != nil {
			h.logger.Warn("bad membership message", "type", msg.Type, "err", err)
			return true
		}
		ev := &RoomEvent{Type: PeerJoined, Peer: p.PeerID}
		if msg.Type == protocol.TypePeerLeft {
			ev.Type = PeerLeft
		}
		return h.emit(ev)

	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeCandidate:
		kind, _ := protocol.KindFromDeliveryType(msg.Type)
		var p protocol.SignalPayload
		if err := msg.DecodePayload(&p); err != nil {
			h.logger.Warn("bad signal", "type", msg.Type, "err", err)
			return true
		}
		return h.emit(&RoomEvent{Type: Signal, Peer: p.From, Kind: kind, Body: p.Body})

	case protocol.TypeError:
		var p protocol.ErrorPayload
		text := "Unknown error from server"
		if err := msg.DecodePayload(&p); err == nil && p.Error != "" {
			text = p.Error
		}
		select {
		case h.Error <- text:
		default:
			h.logger.Warn("server error dropped", "error", text)
		}

	default:
		h.logger.Debug("unknown message type", "type", msg.Type)
	}
	return true
}

func (h *Handler) offer(ch chan string, v string) bool {
	select {
	case ch <- v:
		return true
	case <-h.stop:
		return false
	}
}

func (h *Handler) offerSnapshot(s *Snapshot) bool {
	select {
	case h.Snapshot <- s:
		return true
	case <-h.stop:
		return false
	}
}

func (h *Handler) emit(ev *RoomEvent) bool {
	select {
	case h.Room <- ev:
		return true
	case <-h.stop:
		return false
	}
}

// Close stops routing; Start returns and closes the channels.
func (h *Handler) Close() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}
