package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/protocol"
	"github.com/BioHazard786/meshcall/internal/server"
	"github.com/BioHazard786/meshcall/internal/signaling"
)

func startServer(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := signaling.NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(server.Routes(hub, &config.ServerConfig{MaxMessageBytes: config.DefaultMaxMessageBytes}, nil))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type session struct {
	client  *Client
	handler *Handler
	id      string
}

func connect(t *testing.T, url string) *session {
	t.Helper()
	c := NewClient(url)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h := NewHandler(c)
	go h.Start()
	t.Cleanup(func() {
		h.Close()
		c.Close()
	})

	select {
	case id := <-h.Welcome:
		return &session{client: c, handler: h, id: id}
	case <-time.After(5 * time.Second):
		t.Fatal("no welcome")
	}
	return nil
}

func (s *session) join(t *testing.T, room string) *Snapshot {
	t.Helper()
	if err := s.client.Join(room); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	select {
	case snap := <-s.handler.Snapshot:
		return snap
	case text := <-s.handler.Error:
		t.Fatalf("join error: %s", text)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot")
	}
	return nil
}

func (s *session) next(t *testing.T) *RoomEvent {
	t.Helper()
	select {
	case ev, ok := <-s.handler.Room:
		if !ok {
			t.Fatal("room channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no room event")
	}
	return nil
}

func TestJoinAndRelay(t *testing.T) {
	url := startServer(t)
	a := connect(t, url)
	b := connect(t, url)

	if snap := a.join(t, "room1"); snap.RoomID != "room1" || len(snap.PeerIDs) != 0 {
		t.Fatalf("A snapshot=%+v", snap)
	}
	if snap := b.join(t, "room1"); !slices.Equal(snap.PeerIDs, []string{a.id}) {
		t.Fatalf("B snapshot=%+v, want [%s]", snap, a.id)
	}
	if ev := a.next(t); ev.Type != PeerJoined || ev.Peer != b.id {
		t.Fatalf("A event=%+v, want peer joined %s", ev, b.id)
	}

	body := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	if err := a.client.Relay(protocol.KindOffer, b.id, body); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}
	if err := a.client.Relay(protocol.KindCandidate, b.id, json.RawMessage(`{"candidate":"c1"}`)); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	ev := b.next(t)
	if ev.Type != Signal || ev.Kind != protocol.KindOffer || ev.Peer != a.id || string(ev.Body) != string(body) {
		t.Fatalf("B event=%+v", ev)
	}
	if ev := b.next(t); ev.Kind != protocol.KindCandidate {
		t.Fatalf("second event kind=%q, want candidate", ev.Kind)
	}

	a.client.Close()
	if ev := b.next(t); ev.Type != PeerLeft || ev.Peer != a.id {
		t.Fatalf("B event=%+v, want peer left %s", ev, a.id)
	}
}

func TestServerErrorsReachHandler(t *testing.T) {
	url := startServer(t)
	a := connect(t, url)

	if err := a.client.Relay(protocol.KindOffer, "nobody", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case text := <-a.handler.Error:
		if text != "you must join a room first" {
			t.Fatalf("error=%q", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error")
	}
}

func TestSendAfterClose(t *testing.T) {
	url := startServer(t)
	a := connect(t, url)

	a.client.Close()
	a.client.Close()
	if err := a.client.Join("room1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Join after Close err=%v, want %v", err, ErrClosed)
	}

	// The handler drains and closes once the connection ends.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-a.handler.Room:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("room channel never closed")
		}
	}
}

func TestConnectFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("Connect() to a closed port succeeded")
	}
}
