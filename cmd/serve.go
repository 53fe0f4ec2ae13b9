package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/logging"
	"github.com/BioHazard786/meshcall/internal/server"
	"github.com/BioHazard786/meshcall/internal/signaling"
)

const shutdownTimeout = 5 * time.Second

var (
	flagServeListen   string
	flagServeOrigins  string
	flagServeMaxBytes int64
	flagServeRate     float64
	flagServeBurst    int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rendezvous server",
	Long: `Run the rendezvous server that introduces peers in a room and relays
their handshake messages.

Examples:
  meshcall serve
  meshcall serve --listen :9000 --origins https://chat.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(config.ServerOptions{
			ListenAddr:        flagServeListen,
			AllowedOrigins:    flagServeOrigins,
			MaxMessageBytes:   flagServeMaxBytes,
			MessagesPerSecond: flagServeRate,
			MessageBurst:      flagServeBurst,
		})
		if err != nil {
			return err
		}
		logger := logging.Init(slog.LevelInfo)
		return runServer(cmd.Context(), cfg, logger)
	},
}

func runServer(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, cfg, logger)
}

// serve runs the hub and HTTP server on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, cfg *config.ServerConfig, logger *slog.Logger) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	hub := signaling.NewHub(logger)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	srv := &http.Server{
		Handler:           server.Routes(hub, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting rendezvous server",
		"listen_addr", ln.Addr().String(),
		"allowed_origins", cfg.AllowedOrigins,
		"max_message_bytes", cfg.MaxMessageBytes,
		"messages_per_second", cfg.MessagesPerSecond,
		"message_burst", cfg.MessageBurst,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		stopHub()
		<-hubDone
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// Websocket connections are hijacked and not tracked by Shutdown; the
	// hub closes them.
	stopHub()
	<-hubDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagServeListen, "listen", "l", "", "Listen address (default :8765)")
	serveCmd.Flags().StringVar(&flagServeOrigins, "origins", "", "Comma separated allowed origins (default *)")
	serveCmd.Flags().Int64Var(&flagServeMaxBytes, "max-message-bytes", 0, "Largest accepted websocket message")
	serveCmd.Flags().Float64Var(&flagServeRate, "rate", 0, "Messages per second allowed per connection")
	serveCmd.Flags().IntVar(&flagServeBurst, "burst", 0, "Message burst allowed per connection")
}
