package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Default configuration values
const (
	DefaultListenAddr        = ":8765"
	DefaultAllowedOrigins    = "*"
	DefaultMaxMessageBytes   = 64 * 1024 // enough for SDP with a signature envelope
	DefaultMessagesPerSecond = 50
	DefaultMessageBurst      = 100

	DefaultServerURL = "ws://localhost:8765/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// ServerConfig holds rendezvous server configuration
type ServerConfig struct {
	ListenAddr string

	// AllowedOrigins lists accepted Origin headers; "*" accepts any.
	AllowedOrigins []string

	MaxMessageBytes   int64
	MessagesPerSecond float64
	MessageBurst      int
}

// ServerOptions for loading server config with CLI flag overrides
type ServerOptions struct {
	ListenAddr        string
	AllowedOrigins    string
	MaxMessageBytes   int64
	MessagesPerSecond float64
	MessageBurst      int
}

// LoadServer reads server configuration with the following priority:
// 1. CLI flags (passed via ServerOptions) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	listen := firstNonEmpty(opts.ListenAddr, os.Getenv("LISTEN_ADDR"), DefaultListenAddr)
	origins := firstNonEmpty(opts.AllowedOrigins, os.Getenv("ALLOWED_ORIGINS"), DefaultAllowedOrigins)

	maxBytes := opts.MaxMessageBytes
	if maxBytes == 0 {
		v, err := envInt64("MAX_MESSAGE_BYTES", DefaultMaxMessageBytes)
		if err != nil {
			return nil, err
		}
		maxBytes = v
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max message bytes must be positive, got %d", maxBytes)
	}

	mps := opts.MessagesPerSecond
	if mps == 0 {
		v, err := envFloat("MESSAGES_PER_SECOND", DefaultMessagesPerSecond)
		if err != nil {
			return nil, err
		}
		mps = v
	}
	if mps < 0 {
		return nil, fmt.Errorf("messages per second must not be negative, got %v", mps)
	}

	burst := opts.MessageBurst
	if burst == 0 {
		v, err := envInt64("MESSAGE_BURST", DefaultMessageBurst)
		if err != nil {
			return nil, err
		}
		burst = int(v)
	}

	return &ServerConfig{
		ListenAddr:        listen,
		AllowedOrigins:    splitList(origins),
		MaxMessageBytes:   maxBytes,
		MessagesPerSecond: mps,
		MessageBurst:      burst,
	}, nil
}

// Config holds mesh client configuration
type Config struct {
	// ServerURL is the rendezvous websocket endpoint
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// SigningKey is a PEM private key used to sign offers and answers.
	SigningKey string

	// TrustedKeys are PEM public key files accepted from remote peers.
	TrustedKeys []string
}

// Options for loading client config with CLI flag overrides
type Options struct {
	ServerURL   string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	SigningKey  string
	TrustedKeys []string
}

// Load reads client configuration with the same flag > env > default priority.
func Load(opts Options) (*Config, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv("SERVER_URL"), DefaultServerURL)
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	forceRelay := opts.ForceRelay
	if !forceRelay {
		if v, ok := os.LookupEnv("FORCE_RELAY"); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid FORCE_RELAY %q: %w", v, err)
			}
			forceRelay = b
		}
	}

	trusted := opts.TrustedKeys
	if len(trusted) == 0 {
		trusted = splitList(os.Getenv("TRUSTED_KEYS"))
	}

	return &Config{
		ServerURL:   u.String(),
		STUNServer:  firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:  firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:    firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:    firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:  forceRelay,
		SigningKey:  firstNonEmpty(opts.SigningKey, os.Getenv("SIGNING_KEY")),
		TrustedKeys: trusted,
	}, nil
}

// HTTPBaseURL returns the http(s) origin of the rendezvous server.
func (c *Config) HTTPBaseURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{c.TURNServer}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt64(key string, def int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}
