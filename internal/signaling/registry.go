package signaling

import (
	"errors"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrAlreadyInRoom     = errors.New("connection already joined a room")
)

// Endpoint is the outbound half of an attached connection.
type Endpoint interface {
	// ID is the server-assigned connection id.
	ID() string

	// Deliver queues msg for the connection. It must not block; false means
	// the message could not be queued.
	Deliver(msg *protocol.Message) bool
}

type connection struct {
	endpoint Endpoint
	roomID   string
}

// Registry maps every live connection id to its endpoint and room.
// It is not safe for concurrent use; the hub goroutine owns it.
type Registry struct {
	conns map[string]*connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connection)}
}

// Register adds a connection that is not yet in any room.
func (r *Registry) Register(ep Endpoint) {
	r.conns[ep.ID()] = &connection{endpoint: ep}
}

// AssignRoom records the room of a connection. A connection joins at most
// one room for its whole lifetime.
func (r *Registry) AssignRoom(id, roomID string) error {
	c, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	if c.roomID != "" {
		return ErrAlreadyInRoom
	}
	c.roomID = roomID
	return nil
}

// Unregister removes the connection and returns the room it was in, if any.
func (r *Registry) Unregister(id string) (string, bool) {
	c, ok := r.conns[id]
	if !ok {
		return "", false
	}
	delete(r.conns, id)
	return c.roomID, true
}

// Lookup returns the endpoint of a live connection.
func (r *Registry) Lookup(id string) (Endpoint, bool) {
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return c.endpoint, true
}

// RoomOf returns the room of a live connection, or "" when it has none.
func (r *Registry) RoomOf(id string) string {
	if c, ok := r.conns[id]; ok {
		return c.roomID
	}
	return ""
}

func (r *Registry) Len() int {
	return len(r.conns)
}
