package config

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// RelayConfig selects and parameterizes the platform side of one link.
type RelayConfig struct {
	Kind       string `yaml:"kind"` // "discord" or "webhook"
	Token      string `yaml:"token"`
	ChannelID  string `yaml:"channel_id"`
	WebhookURL string `yaml:"webhook_url"`
}

// GuildConfig is one bridged guild: the game account that sits in it and the
// relay channel its chat maps to.
type GuildConfig struct {
	GuildID  string `yaml:"guild_id"`
	Username string `yaml:"username"`
	Token    string `yaml:"token"`

	Relay RelayConfig `yaml:"relay"`

	GuildPrefix   string `yaml:"guild_prefix"`
	OfficerPrefix string `yaml:"officer_prefix"`
	CommandPrefix string `yaml:"command_prefix"`
}

type guildsFile struct {
	Guilds []GuildConfig `yaml:"guilds"`
}

// LoadGuilds reads the guild roster file and validates every entry.
func LoadGuilds(path string) ([]GuildConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guilds file: %w", err)
	}
	var f guildsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse guilds file: %w", err)
	}
	if len(f.Guilds) == 0 {
		return nil, fmt.Errorf("guilds file %s lists no guilds", path)
	}

	seen := make(map[string]struct{}, len(f.Guilds))
	for i := range f.Guilds {
		g := &f.Guilds[i]
		if err := validateGuild(g); err != nil {
			return nil, fmt.Errorf("guild entry %d: %w", i, err)
		}
		if _, dup := seen[g.GuildID]; dup {
			return nil, fmt.Errorf("duplicate guild_id %q", g.GuildID)
		}
		seen[g.GuildID] = struct{}{}
	}
	return f.Guilds, nil
}

func validateGuild(g *GuildConfig) error {
	g.GuildID = strings.TrimSpace(g.GuildID)
	g.Username = strings.TrimSpace(g.Username)
	if g.GuildID == "" {
		return fmt.Errorf("guild_id is required")
	}
	if g.Username == "" {
		return fmt.Errorf("username is required")
	}
	if strings.TrimSpace(g.Token) == "" {
		return fmt.Errorf("token is required")
	}
	switch strings.ToLower(strings.TrimSpace(g.Relay.Kind)) {
	case "discord":
		if strings.TrimSpace(g.Relay.Token) == "" || strings.TrimSpace(g.Relay.ChannelID) == "" {
			return fmt.Errorf("discord relay needs token and channel_id")
		}
	case "webhook":
		if strings.TrimSpace(g.Relay.WebhookURL) == "" {
			return fmt.Errorf("webhook relay needs webhook_url")
		}
	default:
		return fmt.Errorf("unknown relay kind %q", g.Relay.Kind)
	}
	return nil
}
