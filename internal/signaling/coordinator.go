package signaling

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

// RoomInfo describes one live room.
type RoomInfo struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// Coordinator owns room membership and routes messages between
// connections. All methods must be called from a single goroutine.
type Coordinator struct {
	registry *Registry

	// rooms maps room IDs to their member connection ids.
	rooms map[string]map[string]struct{}

	logger *slog.Logger
}

func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: NewRegistry(),
		rooms:    make(map[string]map[string]struct{}),
		logger:   logger,
	}
}

// Connect registers a new connection and tells it its id.
func (c *Coordinator) Connect(ep Endpoint) {
	c.registry.Register(ep)
	c.logger.Info("client registered", "peer", ep.ID())
	ep.Deliver(protocol.MustNew(protocol.TypeWelcome, protocol.WelcomePayload{PeerID: ep.ID()}))
}

// Join admits a connection to a room. The joiner receives the members that
// were present before it arrived; each of them is then told about the joiner.
func (c *Coordinator) Join(id, roomID string) {
	ep, ok := c.registry.Lookup(id)
	if !ok {
		return
	}

	if roomID == "" {
		c.logger.Warn("join rejected: missing room id", "peer", id)
		c.reject(ep, "room_id is required")
		return
	}

	if err := c.registry.AssignRoom(id, roomID); err != nil {
		c.logger.Warn("join rejected", "peer", id, "room", roomID, "err", err)
		c.reject(ep, err.Error())
		return
	}

	members, ok := c.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		c.rooms[roomID] = members
		c.logger.Info("room created", "room", roomID)
	}

	others := sortedIDs(members)
	members[id] = struct{}{}

	c.logger.Info("client joined room", "peer", id, "room", roomID, "members", len(members))

	snapshot := protocol.MustNew(protocol.TypeRoomSnapshot, protocol.SnapshotPayload{PeerIDs: others})
	snapshot.RoomID = roomID
	ep.Deliver(snapshot)

	joined := protocol.MustNew(protocol.TypePeerJoined, protocol.PeerPayload{PeerID: id})
	joined.RoomID = roomID
	for _, other := range others {
		c.deliver(other, joined)
	}
}

// Relay forwards an opaque handshake body from one connection to exactly
// one named target. Unknown targets are dropped without telling the sender.
func (c *Coordinator) Relay(id string, kind protocol.SignalKind, to string, body json.RawMessage) {
	ep, ok := c.registry.Lookup(id)
	if !ok {
		return
	}

	if c.registry.RoomOf(id) == "" {
		c.logger.Warn("relay rejected: sender not in a room", "peer", id, "kind", kind)
		c.reject(ep, "you must join a room first")
		return
	}

	target, ok := c.registry.Lookup(to)
	if !ok {
		c.logger.Debug("relay dropped: unknown target", "peer", id, "to", to, "kind", kind)
		return
	}

	c.logger.Debug("relaying signal", "peer", id, "to", to, "kind", kind)
	target.Deliver(protocol.MustNew(kind.DeliveryType(), protocol.SignalPayload{From: id, Body: body}))
}

// Disconnect removes a connection and tells the rest of its room.
func (c *Coordinator) Disconnect(id string) {
	roomID, ok := c.registry.Unregister(id)
	if !ok {
		return
	}
	c.logger.Info("client unregistered", "peer", id)

	if roomID == "" {
		return
	}

	members := c.rooms[roomID]
	delete(members, id)

	if len(members) == 0 {
		delete(c.rooms, roomID)
		c.logger.Info("room deleted", "room", roomID)
		return
	}

	c.logger.Info("peer left room", "peer", id, "room", roomID, "members", len(members))

	left := protocol.MustNew(protocol.TypePeerLeft, protocol.PeerPayload{PeerID: id})
	left.RoomID = roomID
	for member := range members {
		c.deliver(member, left)
	}
}

// Handle dispatches one inbound client message.
func (c *Coordinator) Handle(id string, msg *protocol.Message) {
	if msg.Type == protocol.TypeJoin {
		c.Join(id, msg.RoomID)
		return
	}

	kind, ok := protocol.KindFromRelayType(msg.Type)
	if !ok {
		c.logger.Warn("unknown message type", "peer", id, "type", msg.Type)
		return
	}

	var relay protocol.RelayPayload
	if err := msg.DecodePayload(&relay); err != nil || relay.To == "" {
		c.logger.Warn("malformed relay", "peer", id, "type", msg.Type, "err", err)
		if ep, ok := c.registry.Lookup(id); ok {
			c.reject(ep, "relay requires a target")
		}
		return
	}
	c.Relay(id, kind, relay.To, relay.Body)
}

// Members returns the current member ids of a room, sorted.
func (c *Coordinator) Members(roomID string) []string {
	return sortedIDs(c.rooms[roomID])
}

// Rooms returns every live room, sorted by id.
func (c *Coordinator) Rooms() []RoomInfo {
	infos := make([]RoomInfo, 0, len(c.rooms))
	for id, members := range c.rooms {
		infos = append(infos, RoomInfo{ID: id, Members: sortedIDs(members)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Connections returns the number of live connections.
func (c *Coordinator) Connections() int {
	return c.registry.Len()
}

// Endpoints returns every live endpoint.
func (c *Coordinator) Endpoints() []Endpoint {
	eps := make([]Endpoint, 0, c.registry.Len())
	for _, conn := range c.registry.conns {
		eps = append(eps, conn.endpoint)
	}
	return eps
}

func (c *Coordinator) deliver(id string, msg *protocol.Message) {
	ep, ok := c.registry.Lookup(id)
	if !ok {
		return
	}
	if !ep.Deliver(msg) {
		c.logger.Warn("send queue full, message dropped", "peer", id, "type", msg.Type)
	}
}

func (c *Coordinator) reject(ep Endpoint, reason string) {
	ep.Deliver(protocol.MustNew(protocol.TypeError, protocol.ErrorPayload{Error: reason}))
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
