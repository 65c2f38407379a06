package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRequiresGatewayURL(t *testing.T) {
	t.Setenv("GATEWAY_URL", "")
	t.Setenv("GUILDS_FILE", "/etc/guilds.yaml")
	if _, err := Load(); err == nil {
		t.Fatal("want error for missing GATEWAY_URL")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("GATEWAY_URL", "wss://gateway.example/chat")
	t.Setenv("GUILDS_FILE", "/etc/guilds.yaml")
	t.Setenv("SEND_MIN_DELAY_MS", "250")
	t.Setenv("MAX_AUTH_RETRIES", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxChatLen != 256 {
		t.Errorf("MaxChatLen = %d, want default 256", cfg.MaxChatLen)
	}
	if cfg.SendMinDelay != 250*time.Millisecond {
		t.Errorf("SendMinDelay = %v", cfg.SendMinDelay)
	}
	if cfg.MaxAuthRetries != 5 {
		t.Errorf("MaxAuthRetries = %d", cfg.MaxAuthRetries)
	}
}

const sampleGuilds = `
guilds:
  - guild_id: sable
    username: BridgeBot
    token: abc123
    relay:
      kind: discord
      token: dtoken
      channel_id: "123456"
  - guild_id: ember
    username: EmberLink
    token: def456
    relay:
      kind: webhook
      webhook_url: https://hooks.example/x
`

func writeGuilds(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "guilds.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadGuilds(t *testing.T) {
	gs, err := LoadGuilds(writeGuilds(t, sampleGuilds))
	if err != nil {
		t.Fatalf("LoadGuilds: %v", err)
	}
	if len(gs) != 2 {
		t.Fatalf("len = %d, want 2", len(gs))
	}
	if gs[0].Relay.Kind != "discord" || gs[1].Relay.Kind != "webhook" {
		t.Errorf("relay kinds = %q, %q", gs[0].Relay.Kind, gs[1].Relay.Kind)
	}
}

func TestLoadGuildsRejectsDuplicates(t *testing.T) {
	body := strings.ReplaceAll(sampleGuilds, "ember", "sable")
	if _, err := LoadGuilds(writeGuilds(t, body)); err == nil {
		t.Fatal("want duplicate guild_id error")
	}
}

func TestLoadGuildsValidatesRelay(t *testing.T) {
	body := `
guilds:
  - guild_id: sable
    username: BridgeBot
    token: abc
    relay:
      kind: discord
`
	if _, err := LoadGuilds(writeGuilds(t, body)); err == nil {
		t.Fatal("want error for discord relay without token")
	}
}
