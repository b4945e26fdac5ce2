package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != DefaultDomain {
		t.Errorf("Domain = %q, want %q", cfg.Domain, DefaultDomain)
	}
	if want := "wss://" + DefaultDomain + "/ws"; cfg.WebSocketURL != want {
		t.Errorf("WebSocketURL = %q, want %q", cfg.WebSocketURL, want)
	}
	if want := "https://" + DefaultDomain; cfg.RegistryURL != want {
		t.Errorf("RegistryURL = %q, want %q", cfg.RegistryURL, want)
	}
	if cfg.InviteTimeout != DefaultInviteTimeout {
		t.Errorf("InviteTimeout = %v", cfg.InviteTimeout)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
}

func TestLoadPriority(t *testing.T) {
	t.Setenv("TELECALL_DOMAIN", "env.example.org")

	// env beats default
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != "env.example.org" {
		t.Errorf("Domain = %q, want env value", cfg.Domain)
	}

	// flag beats env
	cfg, err = Load(Options{Domain: "flag.example.org"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != "flag.example.org" {
		t.Errorf("Domain = %q, want flag value", cfg.Domain)
	}
	if !strings.Contains(cfg.WebSocketURL, "flag.example.org") {
		t.Errorf("WebSocketURL = %q not derived from flag domain", cfg.WebSocketURL)
	}
}

func TestLoadExplicitURLsOverrideDomain(t *testing.T) {
	cfg, err := Load(Options{
		Domain:    "example.org",
		BrokerURL: "ws://localhost:8888/ws",
		Registry:  "http://localhost:8080",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebSocketURL != "ws://localhost:8888/ws" {
		t.Errorf("WebSocketURL = %q", cfg.WebSocketURL)
	}
	if cfg.RegistryURL != "http://localhost:8080" {
		t.Errorf("RegistryURL = %q", cfg.RegistryURL)
	}
}

func TestLoadTimeoutOverrides(t *testing.T) {
	cfg, err := Load(Options{
		InviteTimeout:  5 * time.Second,
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InviteTimeout != 5*time.Second {
		t.Errorf("InviteTimeout = %v", cfg.InviteTimeout)
	}
	if cfg.ConnectTimeout != 2*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
}

func TestLoadInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	if _, err := Load(Options{}); err == nil {
		t.Fatal("Load accepted invalid REDIS_DB")
	}
}

func TestTURNServers(t *testing.T) {
	cfg := &Config{}
	if got := cfg.GetTURNServers(); got != nil {
		t.Errorf("GetTURNServers without TURN = %v, want nil", got)
	}

	cfg = &Config{TURNServer: "turn:turn.example.org", TURNUser: "u", TURNPass: "p"}
	servers := cfg.GetTURNServers()
	if len(servers) != 3 {
		t.Fatalf("GetTURNServers = %d entries, want 3", len(servers))
	}
	for _, s := range servers {
		if !strings.Contains(s, "turn.example.org") {
			t.Errorf("server %q missing host", s)
		}
	}
	user, pass := cfg.GetTURNCredentials()
	if user != "u" || pass != "p" {
		t.Errorf("credentials = %q/%q", user, pass)
	}
}
