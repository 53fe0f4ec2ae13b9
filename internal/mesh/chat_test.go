package mesh

import (
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

func TestEncodeChat(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	data, err := EncodeChat("hi all", at)
	if err != nil {
		t.Fatalf("EncodeChat() error = %v", err)
	}

	frame, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if frame.Type != FrameTypeChat {
		t.Fatalf("frame type=%q, want %q", frame.Type, FrameTypeChat)
	}

	var msg ChatMessage
	if err := frame.DecodePayload(&msg); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if msg.Text != "hi all" || !msg.Time().Equal(at) {
		t.Fatalf("chat=%+v, want hi all at %v", msg, at)
	}
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	if _, err := ParseFrame([]byte{0xc1}); err == nil {
		t.Fatal("ParseFrame accepted an invalid msgpack byte")
	}
}

func TestReceiveIgnoresUnknownFrames(t *testing.T) {
	var log chatLog
	m, err := NewManager(Options{
		LocalID:      "a",
		Signaler:     newFakeNet().signaler("a"),
		NewTransport: newFakeNet().factory("a"),
		Notify:       log.notify,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	frame, _ := NewFrame("file", map[string]string{"name": "x"})
	data, _ := msgpack.Marshal(frame)
	m.receive("b", data)
	m.receive("b", []byte("not msgpack"))

	if log.len() != 0 {
		t.Fatalf("notifications=%d, want 0", log.len())
	}
}
