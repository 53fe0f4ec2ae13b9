package mesh

import (
	"encoding/json"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

// Transport is the direct peer-to-peer channel behind one session.
// Descriptions and candidates are opaque JSON bodies.
type Transport interface {
	// CreateOffer produces a local offer and installs it.
	CreateOffer() (json.RawMessage, error)

	// AcceptOffer installs a remote offer and returns the local answer.
	AcceptOffer(offer json.RawMessage) (json.RawMessage, error)

	// AcceptAnswer installs the remote answer to our offer.
	AcceptAnswer(answer json.RawMessage) error

	// AddCandidate feeds a remote candidate to path negotiation.
	AddCandidate(candidate json.RawMessage) error

	// Send writes an application frame to the side-channel.
	Send(data []byte) error

	Close() error
}

// TransportEvents are the callbacks a transport raises. They may be called
// from any goroutine and must not block.
type TransportEvents struct {
	LocalCandidate func(candidate json.RawMessage)
	Connected      func()
	Failed         func(err error)
	Message        func(data []byte)
}

// TransportFactory creates the transport for a session with peerID.
type TransportFactory func(peerID string, role Role, events TransportEvents) (Transport, error)

// Signaler relays handshake bodies to a peer through the rendezvous server.
type Signaler interface {
	Relay(kind protocol.SignalKind, to string, body json.RawMessage) error
}
