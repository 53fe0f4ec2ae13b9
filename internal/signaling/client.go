package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound messages buffered per client before it is considered stuck.
	sendBufferSize = 256
)

// ClientOptions bounds what a single connection may send.
type ClientOptions struct {
	// MaxMessageBytes is the largest frame accepted from the peer.
	MaxMessageBytes int64

	// MessagesPerSecond and Burst feed the per-connection rate limiter.
	// Zero disables limiting.
	MessagesPerSecond float64
	Burst             int
}

// Client is a wrapper for a single websocket connection (a peer).
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	// send is a buffered channel for all outbound messages.
	// The hub writes to it and WritePump drains it to the websocket.
	send chan *protocol.Message

	limiter *rate.Limiter
	maxSize int64

	// Owned by the hub goroutine.
	sendClosed bool
	kickOnce   sync.Once
}

// NewClient wraps conn with a fresh connection id.
func NewClient(hub *Hub, conn *websocket.Conn, opts ClientOptions) *Client {
	c := &Client{
		id:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		send:    make(chan *protocol.Message, sendBufferSize),
		maxSize: opts.MaxMessageBytes,
	}
	if opts.MessagesPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), burst)
	}
	return c
}

func (c *Client) ID() string {
	return c.id
}

// Deliver queues msg without blocking the hub. A client whose queue is full
// is disconnected; its read pump then unregisters it normally.
func (c *Client) Deliver(msg *protocol.Message) bool {
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.kickOnce.Do(func() {
			c.hub.logger.Warn("client send queue full, disconnecting", "peer", c.id)
			c.conn.Close()
		})
		return false
	}
}

func (c *Client) closeSend() {
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// Serve registers the client with its hub and starts both pumps.
func (c *Client) Serve() error {
	if err := c.hub.Register(c); err != nil {
		return err
	}
	go c.WritePump()
	go c.ReadPump()
	return nil
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	if c.maxSize > 0 {
		c.conn.SetReadLimit(c.maxSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("read failed", "peer", c.id, "err", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.logger.Warn("rate limit exceeded, message dropped", "peer", c.id, "type", msg.Type)
			continue
		}

		if !c.hub.submit(c, &msg) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.logger.Warn("write failed", "peer", c.id, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
