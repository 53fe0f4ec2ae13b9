package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/signaling"
)

// newUpgrader builds a websocket upgrader that enforces the origin allow-list.
// Requests without an Origin header (native clients) are always accepted.
func newUpgrader(allowed []string) *websocket.Upgrader {
	allowAll := len(allowed) == 0 || slices.Contains(allowed, "*")
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			return slices.Contains(allowed, origin)
		},
	}
}

// ServeWs returns an http.HandlerFunc that attaches websocket clients to hub.
func ServeWs(hub *signaling.Hub, cfg *config.ServerConfig, logger *slog.Logger) http.HandlerFunc {
	upgrader := newUpgrader(cfg.AllowedOrigins)
	opts := signaling.ClientOptions{
		MaxMessageBytes:   cfg.MaxMessageBytes,
		MessagesPerSecond: cfg.MessagesPerSecond,
		Burst:             cfg.MessageBurst,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "err", err)
			return
		}

		client := signaling.NewClient(hub, conn, opts)
		if err := client.Serve(); err != nil {
			logger.Warn("rejecting connection", "remote", r.RemoteAddr, "err", err)
			conn.Close()
			return
		}
		logger.Debug("connection attached", "remote", r.RemoteAddr, "peer", client.ID())
	}
}

// healthCheckHandler reports liveness.
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// roomsHandler serves the hub's live room table as JSON.
func roomsHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := hub.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

// Routes registers every endpoint of the rendezvous server.
func Routes(hub *signaling.Hub, cfg *config.ServerConfig, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /rooms", roomsHandler(hub))
	mux.HandleFunc("GET /ws", ServeWs(hub, cfg, logger))
	return mux
}
