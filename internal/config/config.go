package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default configuration values (production)
const (
	DefaultDomain     = "calls.medibridge.dev"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultTURN       = "" // Optional, empty by default
	DefaultTURNUser   = ""
	DefaultTURNPass   = ""
	DefaultRedisAddr  = "localhost:6379"
	DefaultJWTSecret  = "change-me-in-production"
	DefaultHTTPListen = ":8080"
	DefaultWSListen   = ":8888"

	DefaultInviteTimeout  = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Config holds application configuration
type Config struct {
	// Domain is the backend server domain
	Domain string

	// WebSocketURL and RegistryURL are constructed from domain unless
	// overridden explicitly.
	WebSocketURL string
	RegistryURL  string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Server-side settings (telecall serve)
	HTTPListenAddr string
	WSListenAddr   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	JWTSecret      string
	MemStore       bool

	// Handshake policy
	InviteTimeout  time.Duration
	ConnectTimeout time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain     string
	BrokerURL  string
	Registry   string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	HTTPListenAddr string
	WSListenAddr   string
	RedisAddr      string
	MemStore       bool

	InviteTimeout  time.Duration
	ConnectTimeout time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstOf(opts.Domain, os.Getenv("TELECALL_DOMAIN"), DefaultDomain)

	cfg := &Config{
		Domain:       domain,
		WebSocketURL: firstOf(opts.BrokerURL, os.Getenv("TELECALL_BROKER_URL"), fmt.Sprintf("wss://%s/ws", domain)),
		RegistryURL:  firstOf(opts.Registry, os.Getenv("TELECALL_REGISTRY_URL"), fmt.Sprintf("https://%s", domain)),

		STUNServer: firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN),
		TURNUser:   firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser),
		TURNPass:   firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass),
		ForceRelay: opts.ForceRelay,

		HTTPListenAddr: firstOf(opts.HTTPListenAddr, os.Getenv("TELECALL_HTTP_LISTEN"), DefaultHTTPListen),
		WSListenAddr:   firstOf(opts.WSListenAddr, os.Getenv("TELECALL_WS_LISTEN"), DefaultWSListen),
		RedisAddr:      firstOf(opts.RedisAddr, os.Getenv("REDIS_ADDR"), DefaultRedisAddr),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		JWTSecret:      firstOf(os.Getenv("JWT_SECRET"), DefaultJWTSecret),
		MemStore:       opts.MemStore,

		InviteTimeout:  DefaultInviteTimeout,
		ConnectTimeout: DefaultConnectTimeout,
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", db, err)
		}
		cfg.RedisDB = n
	}

	if opts.InviteTimeout > 0 {
		cfg.InviteTimeout = opts.InviteTimeout
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnectTimeout = opts.ConnectTimeout
	}

	return cfg, nil
}

// firstOf returns the first non-empty value.
func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
