package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/signaling"
	"github.com/BioHazard786/meshcall/internal/ui"
)

var flagRoomsServer string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List live rooms on the rendezvous server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(config.Options{ServerURL: flagRoomsServer})
		if err != nil {
			return err
		}

		stats, err := fetchRooms(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		rows := make([]ui.RoomRow, 0, len(stats.Rooms))
		for _, r := range stats.Rooms {
			rows = append(rows, ui.RoomRow{ID: r.ID, Members: r.Members})
		}
		ui.WriteRoomsTable(os.Stdout, stats.Connections, rows)
		return nil
	},
}

// fetchRooms reads the server's room table from its HTTP endpoint.
func fetchRooms(ctx context.Context, cfg *config.Config) (*signaling.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.HTTPBaseURL()+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rooms: server returned %s", resp.Status)
	}

	var stats signaling.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return &stats, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().StringVar(&flagRoomsServer, "server", "", "Rendezvous server URL")
}
