package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/logging"
	"github.com/BioHazard786/meshcall/internal/mesh"
	"github.com/BioHazard786/meshcall/internal/roomname"
	"github.com/BioHazard786/meshcall/internal/ui"
	"github.com/BioHazard786/meshcall/internal/wsclient"
)

var (
	flagJoinServer   string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
	flagJoinRelay    bool
	flagJoinSignKey  string
	flagJoinTrust    []string
)

var joinCmd = &cobra.Command{
	Use:     "join [room|url]",
	Aliases: []string{"j"},
	Short:   "Join a room and chat with everyone in it",
	Long: `Join a room on the rendezvous server and connect directly to every other
member. Without a room name a fresh one is generated.

Examples:
  meshcall join
  meshcall join sleepy-otter-harbor-lantern
  meshcall join https://chat.example.com/r/sleepy-otter-harbor-lantern
  meshcall join standup --relay --turn turn:turn.example.com:3478`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(config.Options{
			ServerURL:   flagJoinServer,
			STUNServer:  flagJoinSTUN,
			TURNServer:  flagJoinTURN,
			TURNUser:    flagJoinTURNUser,
			TURNPass:    flagJoinTURNPass,
			ForceRelay:  flagJoinRelay,
			SigningKey:  flagJoinSignKey,
			TrustedKeys: flagJoinTrust,
		})
		if err != nil {
			return err
		}

		var roomID string
		if len(args) == 1 {
			roomID, err = parseRoomInput(args[0])
		} else {
			roomID, err = newRoomName(cmd.Context(), cfg)
		}
		if err != nil {
			return err
		}

		return joinRoom(cmd.Context(), cfg, roomID)
	},
}

func joinRoom(ctx context.Context, cfg *config.Config, roomID string) error {
	logger := logging.Init(slog.LevelError)

	hook, err := buildHook(cfg)
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	conn, err := NewConnectionContext(ctx, cfg, logger)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	var (
		view *ui.RoomUI
		mgr  *mesh.Manager
	)
	mgr, err = mesh.NewManager(mesh.Options{
		LocalID:      conn.PeerID,
		Signaler:     conn.Client,
		NewTransport: mesh.PionTransports(nil, mesh.ICEConfiguration(cfg)),
		Hook:         hook,
		Logger:       logger,
		Notify: func(n mesh.Notification) {
			if n.Chat != nil {
				view.Post(ui.ChatMsg{From: n.Peer, Text: n.Chat.Text, At: n.Chat.Time()})
				return
			}
			view.Post(ui.PeersMsg(sessionRows(mgr.Sessions())))
		},
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	view = ui.NewRoomUI(roomID, conn.PeerID, mgr.Broadcast)

	snap, err := conn.JoinRoom(ctx, roomID)
	if err != nil {
		return err
	}
	mgr.OnSnapshot(snap.PeerIDs)
	fmt.Println(ui.RoomBanner(snap.RoomID, conn.PeerID, len(snap.PeerIDs)))
	if hook != nil {
		ui.PrintInfof("%s Handshakes are signed and verified", ui.IconKey)
	}
	if cfg.RelayOnly() {
		ui.PrintInfo("Using TURN relay only")
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runRoom(ctx, conn.Handler, mgr, view, logger)
		view.Close()
	}()

	err = view.Run()
	conn.Close()
	<-loopDone
	return err
}

// runRoom feeds room events to the session manager until the connection
// ends or ctx is done.
func runRoom(ctx context.Context, h *wsclient.Handler, mgr *mesh.Manager, view *ui.RoomUI, logger *slog.Logger) {
	errCh := h.Error
	refresh := func() {
		view.Post(ui.PeersMsg(sessionRows(mgr.Sessions())))
	}

	for {
		select {
		case ev, ok := <-h.Room:
			if !ok {
				view.Post(ui.StatusMsg("Disconnected from server"))
				return
			}
			if err := dispatch(mgr, ev); err != nil {
				logger.Warn("room event not applied", "peer", ev.Peer, "err", err)
			}
			refresh()

		case msg, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			view.Post(ui.StatusMsg(ui.ErrorStyle.Render(msg)))

		case <-ctx.Done():
			return
		}
	}
}

// dispatch applies one room event to the session manager.
func dispatch(mgr *mesh.Manager, ev *wsclient.RoomEvent) error {
	switch ev.Type {
	case wsclient.PeerJoined:
		return mgr.OnPeerDiscovered(ev.Peer)
	case wsclient.PeerLeft:
		mgr.OnPeerGone(ev.Peer)
		return nil
	case wsclient.Signal:
		return mgr.HandleSignal(ev.Kind, ev.Peer, ev.Body)
	}
	return fmt.Errorf("unknown room event %d", ev.Type)
}

func sessionRows(infos []mesh.SessionInfo) []ui.PeerRow {
	rows := make([]ui.PeerRow, 0, len(infos))
	for _, s := range infos {
		rows = append(rows, ui.PeerRow{Peer: s.Peer, Role: s.Role.String(), State: s.State.String()})
	}
	return rows
}

// newRoomName picks a generated name not currently in use on the server.
func newRoomName(ctx context.Context, cfg *config.Config) (string, error) {
	taken := map[string]bool{}
	stats, err := fetchRooms(ctx, cfg)
	if err != nil {
		ui.PrintWarningf("Could not list live rooms, the new name may be taken: %v", err)
	} else {
		for _, r := range stats.Rooms {
			taken[r.ID] = true
		}
	}
	name, err := roomname.GenerateUnique(func(n string) bool { return taken[n] })
	if err != nil {
		return "", fmt.Errorf("generate room name: %w", err)
	}
	ui.PrintInfof("%s New room: %s", ui.IconRoom, name)
	return name, nil
}

func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("room ID cannot be empty")
	}

	if strings.Contains(input, "://") {
		return extractRoomIDFromURL(input)
	}

	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	if room := parsedURL.Query().Get("room"); room != "" {
		return room, nil
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVar(&flagJoinServer, "server", "", "Rendezvous server URL")
	joinCmd.Flags().StringVarP(&flagJoinSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagJoinTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagJoinRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().StringVar(&flagJoinSignKey, "sign-key", "", "PEM private key used to sign offers and answers")
	joinCmd.Flags().StringSliceVar(&flagJoinTrust, "trust", nil, "PEM public keys accepted from peers")
}
