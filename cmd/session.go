package cmd

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/integrity"
	"github.com/BioHazard786/meshcall/internal/mesh"
	"github.com/BioHazard786/meshcall/internal/wsclient"
)

const (
	welcomeTimeout = 10 * time.Second
	joinTimeout    = 10 * time.Second
)

// ConnectionContext is a live connection to the rendezvous server.
type ConnectionContext struct {
	Client  *wsclient.Client
	Handler *wsclient.Handler
	Config  *config.Config
	PeerID  string
}

// NewConnectionContext dials the server and waits for our connection id.
func NewConnectionContext(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ConnectionContext, error) {
	client := wsclient.NewClient(cfg.ServerURL, wsclient.WithLogger(logger))
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to server: %w", err)
	}

	handler := wsclient.NewHandler(client)
	go handler.Start()

	c := &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}

	timer := time.NewTimer(welcomeTimeout)
	defer timer.Stop()

	select {
	case id, ok := <-handler.Welcome:
		if !ok {
			c.Close()
			return nil, wsclient.ErrClosed
		}
		c.PeerID = id
		return c, nil
	case <-timer.C:
		c.Close()
		return nil, fmt.Errorf("connect to server: no welcome within %s", welcomeTimeout)
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

// JoinRoom joins roomID and returns the peers already present.
func (c *ConnectionContext) JoinRoom(ctx context.Context, roomID string) (*wsclient.Snapshot, error) {
	if err := c.Client.Join(roomID); err != nil {
		return nil, err
	}

	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()

	select {
	case snap, ok := <-c.Handler.Snapshot:
		if !ok {
			return nil, wsclient.ErrClosed
		}
		return snap, nil
	case errMsg, ok := <-c.Handler.Error:
		if !ok {
			return nil, wsclient.ErrClosed
		}
		return nil, fmt.Errorf("join room: %s", errMsg)
	case <-timer.C:
		return nil, fmt.Errorf("join room: no answer within %s", joinTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *ConnectionContext) Close() {
	if c.Handler != nil {
		c.Handler.Close()
	}
	if c.Client != nil {
		c.Client.Close()
	}
}

// LoadConfig loads client config and checks relay settings.
func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// buildHook returns the signing hook configured by cfg, or nil when signing
// is off.
func buildHook(cfg *config.Config) (mesh.Hook, error) {
	if cfg.SigningKey == "" && len(cfg.TrustedKeys) == 0 {
		return nil, nil
	}

	var key *rsa.PrivateKey
	if cfg.SigningKey != "" {
		k, err := integrity.LoadPrivateKey(cfg.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		key = k
	}

	var trusted []*rsa.PublicKey
	for _, path := range cfg.TrustedKeys {
		pub, err := integrity.LoadPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("load trusted key: %w", err)
		}
		trusted = append(trusted, pub)
	}

	signer, err := integrity.NewSigner(key, trusted...)
	if err != nil {
		return nil, err
	}
	return signer, nil
}
