// Package store persists the small per-guild fields the bridge needs across
// restarts. In-memory state stays authoritative while the process runs;
// writes are fire-and-forget from the bridge's point of view.
package store

import (
	"context"
	"time"
)

// Rank is one entry of a guild's rank roster.
type Rank struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	CanInvite bool   `json:"can_invite"`
	CanMute   bool   `json:"can_mute"`
	CanKick   bool   `json:"can_kick"`
}

// GuildRecord holds the persisted fields of one guild link.
type GuildRecord struct {
	GuildID   string            `json:"guild_id"`
	ChannelID string            `json:"channel_id"`
	MuteUntil time.Time         `json:"mute_until"`
	Ranks     []Rank            `json:"ranks"`
	Members   map[string]string `json:"members,omitempty"` // player -> rank name
	UpdatedAt time.Time         `json:"updated_at"`
}

// Repository is the bridge's persistence collaborator. Get returns (nil, nil)
// for an unknown guild.
type Repository interface {
	Get(ctx context.Context, guildID string) (*GuildRecord, error)
	Save(ctx context.Context, guildID string, rec *GuildRecord) error
}
