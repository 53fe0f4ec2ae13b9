package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope for every WebSocket frame exchanged between a
// mesh client and the rendezvous server.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to server.
const (
	TypeJoin           = "join"
	TypeRelayOffer     = "relay_offer"
	TypeRelayAnswer    = "relay_answer"
	TypeRelayCandidate = "relay_candidate"
)

// Server to client.
const (
	TypeWelcome      = "welcome"
	TypeRoomSnapshot = "room_snapshot"
	TypePeerJoined   = "peer_joined"
	TypePeerLeft     = "peer_left"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeCandidate    = "candidate"
	TypeError        = "error"
)

// SignalKind names one of the three handshake messages a client can relay.
type SignalKind string

const (
	KindOffer     SignalKind = "offer"
	KindAnswer    SignalKind = "answer"
	KindCandidate SignalKind = "candidate"
)

// RelayType returns the client->server message type for the kind.
func (k SignalKind) RelayType() string {
	return "relay_" + string(k)
}

// DeliveryType returns the server->client message type for the kind.
func (k SignalKind) DeliveryType() string {
	return string(k)
}

// KindFromRelayType maps relay_offer/relay_answer/relay_candidate to a kind.
func KindFromRelayType(t string) (SignalKind, bool) {
	switch t {
	case TypeRelayOffer:
		return KindOffer, true
	case TypeRelayAnswer:
		return KindAnswer, true
	case TypeRelayCandidate:
		return KindCandidate, true
	}
	return "", false
}

// KindFromDeliveryType maps offer/answer/candidate to a kind.
func KindFromDeliveryType(t string) (SignalKind, bool) {
	switch t {
	case TypeOffer:
		return KindOffer, true
	case TypeAnswer:
		return KindAnswer, true
	case TypeCandidate:
		return KindCandidate, true
	}
	return "", false
}

// WelcomePayload tells a freshly connected client its own connection id.
type WelcomePayload struct {
	PeerID string `json:"peer_id"`
}

// SnapshotPayload lists the members that were in the room when the
// recipient joined. PeerIDs is never nil on the wire.
type SnapshotPayload struct {
	PeerIDs []string `json:"peer_ids"`
}

// PeerPayload names a single peer (peer_joined, peer_left).
type PeerPayload struct {
	PeerID string `json:"peer_id"`
}

// RelayPayload is what a client sends to have Body forwarded to To.
type RelayPayload struct {
	To   string          `json:"to"`
	Body json.RawMessage `json:"body"`
}

// SignalPayload is what the target of a relay receives.
type SignalPayload struct {
	From string          `json:"from"`
	Body json.RawMessage `json:"body"`
}

// ErrorPayload represents an error reported to a single connection.
type ErrorPayload struct {
	Error string `json:"error"`
}

// New builds a message whose payload is the JSON encoding of payload.
// A nil payload produces a message without one.
func New(t string, payload any) (*Message, error) {
	msg := &Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	msg.Payload = b
	return msg, nil
}

// MustNew is New for payloads that cannot fail to encode.
func MustNew(t string, payload any) *Message {
	msg, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// DecodePayload decodes the message payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}
