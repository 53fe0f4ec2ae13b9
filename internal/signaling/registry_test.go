package signaling

import (
	"errors"
	"testing"
)

func TestRegistryAssignRoomOnce(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeEndpoint("a"))

	if err := r.AssignRoom("a", "room1"); err != nil {
		t.Fatalf("AssignRoom() error = %v", err)
	}
	if got := r.RoomOf("a"); got != "room1" {
		t.Fatalf("RoomOf=%q, want room1", got)
	}
	if err := r.AssignRoom("a", "room2"); !errors.Is(err, ErrAlreadyInRoom) {
		t.Fatalf("second AssignRoom err=%v, want %v", err, ErrAlreadyInRoom)
	}
	if err := r.AssignRoom("ghost", "room1"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("AssignRoom(ghost) err=%v, want %v", err, ErrUnknownConnection)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeEndpoint("a"))
	r.Register(newFakeEndpoint("b"))
	_ = r.AssignRoom("a", "room1")

	room, ok := r.Unregister("a")
	if !ok || room != "room1" {
		t.Fatalf("Unregister(a)=(%q, %v), want (room1, true)", room, ok)
	}
	if _, ok := r.Lookup("a"); ok {
		t.Fatal("a still registered")
	}
	if _, ok := r.Unregister("a"); ok {
		t.Fatal("second Unregister reported success")
	}

	room, ok = r.Unregister("b")
	if !ok || room != "" {
		t.Fatalf("Unregister(b)=(%q, %v), want (\"\", true)", room, ok)
	}
	if r.Len() != 0 {
		t.Fatalf("Len=%d, want 0", r.Len())
	}
}
