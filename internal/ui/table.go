package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RoomRow is one line of the server's room listing.
type RoomRow struct {
	ID      string
	Members []string
}

// WriteRoomsTable renders the room listing for `meshcall rooms`.
func WriteRoomsTable(w io.Writer, connections int, rooms []RoomRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Room", "Peers", "Members"})

	total := 0
	for _, r := range rooms {
		short := make([]string, len(r.Members))
		for i, m := range r.Members {
			short[i] = shortID(m)
		}
		t.AppendRow(table.Row{r.ID, len(r.Members), strings.Join(short, ", ")})
		total += len(r.Members)
	}

	t.AppendFooter(table.Row{fmt.Sprintf("%d room(s)", len(rooms)), total, fmt.Sprintf("%d connection(s)", connections)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, WidthMax: 60},
	})
	t.Render()
}

// PeerRow is one session in the room view.
type PeerRow struct {
	Peer  string
	Role  string
	State string
}

// PeersTable renders live sessions for the room view.
func PeersTable(rows []PeerRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No other peers yet")
	}

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, []string{shortID(r.Peer), r.Role, StateStyle(r.State).Render(r.State)})
	}

	tbl := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Peer", "Role", "State").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}
