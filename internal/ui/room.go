package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const maxChatLines = 200

// PeersMsg replaces the session table.
type PeersMsg []PeerRow

// ChatMsg is a chat line received from a peer.
type ChatMsg struct {
	From string
	Text string
	At   time.Time
}

// StatusMsg sets the status line under the header.
type StatusMsg string

// SendFunc broadcasts a chat line and reports how many peers accepted it.
type SendFunc func(text string) (int, error)

type chatLine struct {
	from string
	self bool
	text string
	at   time.Time
}

// RoomModel is the interactive room view: live sessions, a chat log and an
// input line.
type RoomModel struct {
	roomID string
	selfID string
	send   SendFunc

	peers  []PeerRow
	lines  []chatLine
	status string

	input   textinput.Model
	spinner spinner.Model
	updates chan tea.Msg

	quitting bool
}

// NewRoomModel builds the room view. send is called for each line typed.
func NewRoomModel(roomID, selfID string, send SendFunc) *RoomModel {
	in := textinput.New()
	in.Placeholder = "Type a message and press enter"
	in.Prompt = IconChat + " "
	in.CharLimit = 1000
	in.Width = 60
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &RoomModel{
		roomID:  roomID,
		selfID:  selfID,
		send:    send,
		status:  "Waiting for peers...",
		input:   in,
		spinner: s,
		updates: make(chan tea.Msg, 256),
	}
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.listenForUpdates())
}

func (m *RoomModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.updates
		if !ok {
			return tea.Quit()
		}
		return msg
	}
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			m.submit()
			return m, nil
		}

	case PeersMsg:
		m.peers = []PeerRow(msg)
		m.status = m.summary()
		return m, m.listenForUpdates()

	case ChatMsg:
		m.appendLine(chatLine{from: msg.From, text: msg.Text, at: msg.At})
		return m, m.listenForUpdates()

	case StatusMsg:
		m.status = string(msg)
		return m, m.listenForUpdates()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *RoomModel) submit() {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if text == "" {
		return
	}

	n, err := m.send(text)
	switch {
	case err != nil && n == 0:
		m.status = ErrorStyle.Render(fmt.Sprintf("Not delivered: %v", err))
	case n == 0:
		m.status = WarningStyle.Render("No connected peers, message not delivered")
	default:
		m.status = m.summary()
	}
	m.appendLine(chatLine{from: m.selfID, self: true, text: text, at: time.Now()})
}

func (m *RoomModel) appendLine(l chatLine) {
	m.lines = append(m.lines, l)
	if len(m.lines) > maxChatLines {
		m.lines = m.lines[len(m.lines)-maxChatLines:]
	}
}

func (m *RoomModel) summary() string {
	connected := 0
	for _, p := range m.peers {
		if p.State == "established" {
			connected++
		}
	}
	return fmt.Sprintf("%d of %d peer(s) connected", connected, len(m.peers))
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.roomID)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), m.status))
	b.WriteString(PeersTable(m.peers))
	b.WriteString("\n\n")

	for _, l := range m.lines {
		name := PeerStyle.Render(shortID(l.from))
		if l.self {
			name = SelfStyle.Render("you")
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", MutedStyle.Render(l.at.Format("15:04")), name, l.text))
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString(FooterStyle.Render("enter to send, esc to leave"))

	return b.String()
}

// RoomUI runs a RoomModel as a bubbletea program.
type RoomUI struct {
	model   *RoomModel
	program *tea.Program

	mu     sync.Mutex
	closed bool
}

// NewRoomUI creates the room view program.
func NewRoomUI(roomID, selfID string, send SendFunc) *RoomUI {
	m := NewRoomModel(roomID, selfID, send)
	return &RoomUI{model: m, program: tea.NewProgram(m)}
}

// Run blocks until the user leaves or Close is called.
func (ui *RoomUI) Run() error {
	_, err := ui.program.Run()
	return err
}

// Post queues a message for the view without blocking. Messages are dropped
// if the view is not keeping up.
func (ui *RoomUI) Post(msg tea.Msg) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.closed {
		return
	}
	select {
	case ui.model.updates <- msg:
	default:
	}
}

// Close ends the program.
func (ui *RoomUI) Close() {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.closed {
		return
	}
	ui.closed = true
	close(ui.model.updates)
}
