package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestWriteRoomsTable(t *testing.T) {
	var buf bytes.Buffer
	WriteRoomsTable(&buf, 3, []RoomRow{
		{ID: "sleepy-otter-harbor-lantern", Members: []string{"0123456789abcdef", "fedcba9876543210"}},
		{ID: "calm-fox-delta-kite", Members: []string{"aaaaaaaa-bbbb"}},
	})

	out := buf.String()
	for _, want := range []string{"sleepy-otter-harbor-lantern", "calm-fox-delta-kite", "01234567", "2 room(s)", "3 connection(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("rooms table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Errorf("rooms table shows untrimmed id:\n%s", out)
	}
}

func TestRoomModelSubmitSendsAndClearsInput(t *testing.T) {
	var sent []string
	m := NewRoomModel("room", "self-id", func(text string) (int, error) {
		sent = append(sent, text)
		return 1, nil
	})

	m.input.SetValue("  hello mesh  ")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if len(sent) != 1 || sent[0] != "hello mesh" {
		t.Fatalf("sent=%v, want [hello mesh]", sent)
	}
	if m.input.Value() != "" {
		t.Fatalf("input=%q after submit, want empty", m.input.Value())
	}
	if len(m.lines) != 1 || !m.lines[0].self {
		t.Fatalf("lines=%+v, want one local line", m.lines)
	}
}

func TestRoomModelSubmitIgnoresBlankInput(t *testing.T) {
	called := false
	m := NewRoomModel("room", "self", func(string) (int, error) {
		called = true
		return 0, nil
	})

	m.input.SetValue("   ")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if called {
		t.Fatal("send called for blank input")
	}
	if len(m.lines) != 0 {
		t.Fatalf("lines=%d, want 0", len(m.lines))
	}
}

func TestRoomModelReportsUndelivered(t *testing.T) {
	m := NewRoomModel("room", "self", func(string) (int, error) {
		return 0, errors.New("data channel not open")
	})

	m.input.SetValue("anyone?")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if !strings.Contains(m.status, "Not delivered") {
		t.Fatalf("status=%q, want delivery failure", m.status)
	}
}

func TestRoomModelPeersAndChat(t *testing.T) {
	m := NewRoomModel("room", "self", func(string) (int, error) { return 0, nil })

	m.Update(PeersMsg{
		{Peer: "peer-a", Role: "initiator", State: "established"},
		{Peer: "peer-b", Role: "responder", State: "offer-received"},
	})
	if m.status != "1 of 2 peer(s) connected" {
		t.Fatalf("status=%q, want 1 of 2 peer(s) connected", m.status)
	}

	m.Update(ChatMsg{From: "peer-a", Text: "hi there", At: time.Now()})
	view := m.View()
	for _, want := range []string{"hi there", "peer-a", "offer-received"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestRoomModelTrimsChatLog(t *testing.T) {
	m := NewRoomModel("room", "self", func(string) (int, error) { return 0, nil })
	for i := 0; i < maxChatLines+10; i++ {
		m.Update(ChatMsg{From: "p", Text: "x", At: time.Now()})
	}
	if len(m.lines) != maxChatLines {
		t.Fatalf("lines=%d, want %d", len(m.lines), maxChatLines)
	}
}

func TestRoomUIPostAfterClose(t *testing.T) {
	r := NewRoomUI("room", "self", func(string) (int, error) { return 0, nil })
	r.Close()
	r.Close()
	r.Post(StatusMsg("late"))
}
