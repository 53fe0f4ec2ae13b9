package signaling

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

var ErrHubStopped = errors.New("hub stopped")

// inbound is a message read from a client, tagged with its sender.
type inbound struct {
	client *Client
	msg    *protocol.Message
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int        `json:"connections"`
	Rooms       []RoomInfo `json:"rooms"`
}

// Hub is the central brain of the signaling server.
// Its Run loop is the only goroutine that touches the coordinator, so every
// message is applied atomically with respect to every other message.
type Hub struct {
	coordinator *Coordinator

	// register is a channel for registering new clients.
	register chan *Client

	// unregister is a channel for unregistering clients.
	unregister chan *Client

	// inbound carries client messages to the hub for processing.
	inbound chan inbound

	// stats carries admin snapshot requests.
	stats chan chan Stats

	// done is closed when Run returns.
	done chan struct{}

	logger *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		coordinator: NewCoordinator(logger),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		inbound:     make(chan inbound),
		stats:       make(chan chan Stats),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run starts the hub's main processing loop and blocks until ctx is done.
// On return every attached client is closed, which its peers observe as an
// ordinary disconnect.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.coordinator.Connect(client)

		case client := <-h.unregister:
			h.coordinator.Disconnect(client.ID())
			client.closeSend()

		case in := <-h.inbound:
			h.logger.Debug("message received", "peer", in.client.ID(), "type", in.msg.Type)
			h.coordinator.Handle(in.client.ID(), in.msg)

		case reply := <-h.stats:
			reply <- Stats{
				Connections: h.coordinator.Connections(),
				Rooms:       h.coordinator.Rooms(),
			}

		case <-ctx.Done():
			for _, ep := range h.coordinator.Endpoints() {
				if client, ok := ep.(*Client); ok {
					client.closeSend()
				}
			}
			h.logger.Info("hub stopped")
			return
		}
	}
}

// Register attaches a client to the hub.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Stats asks the hub loop for a snapshot of its rooms.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (h *Hub) submit(c *Client, msg *protocol.Message) bool {
	select {
	case h.inbound <- inbound{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
