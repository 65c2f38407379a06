package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/sable-mc/guildbridge/internal/obslog"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

// Discord relays through a bot connection on the platform gateway: posts go
// to the linked channel, and messages typed there come back via OnInbound.
type Discord struct {
	sess      discordSession
	channelID string
	botUserID string

	mu      sync.Mutex
	handler InboundHandler
	remove  func()
}

// NewDiscord connects a bot token to one channel.
func NewDiscord(token, channelID string) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	d := &Discord{sess: s, channelID: channelID}
	if err := d.sess.Open(); err != nil {
		return nil, fmt.Errorf("discord open: %w", err)
	}
	if s.State != nil && s.State.User != nil {
		d.botUserID = s.State.User.ID
	}
	d.remove = d.sess.AddHandler(d.onMessageCreate)
	return d, nil
}

func (d *Discord) Post(ctx context.Context, authorName, avatarRef, text string) error {
	_ = avatarRef // plain sends cannot carry a per-message avatar
	content := text
	if authorName != "" {
		content = "**" + authorName + "**: " + text
	}
	_, err := d.sess.ChannelMessageSend(d.channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord post: %w", err)
	}
	return nil
}

func (d *Discord) OnInbound(h InboundHandler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

func (d *Discord) Close() error {
	if d.remove != nil {
		d.remove()
	}
	return d.sess.Close()
}

func (d *Discord) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.ChannelID != d.channelID {
		return
	}
	if m.Author == nil || m.Author.Bot || m.Author.ID == d.botUserID {
		return
	}
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h == nil {
		return
	}
	obslog.L().Debug("relay_inbound",
		zap.String("channel", m.ChannelID),
		zap.String("author", m.Author.Username))
	h(m.Author.ID, displayName(m), m.Content)
}

func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
