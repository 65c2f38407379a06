// Package bridge wires one guild's game session, correlator, outbound queue
// and relay channel into a single bidirectional link.
package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sable-mc/guildbridge/internal/correlator"
	"github.com/sable-mc/guildbridge/internal/gateway"
	"github.com/sable-mc/guildbridge/internal/mcchat"
	"github.com/sable-mc/guildbridge/internal/msgcat"
	"github.com/sable-mc/guildbridge/internal/obslog"
	"github.com/sable-mc/guildbridge/internal/outbound"
	"github.com/sable-mc/guildbridge/internal/relay"
	"github.com/sable-mc/guildbridge/internal/respmatch"
	"github.com/sable-mc/guildbridge/internal/store"
)

// GuildLink is the bridge-owned association between one guild and one relay
// channel. Mutated only by its bridge's run loop.
type GuildLink struct {
	GuildID   string
	ChannelID string
	MuteUntil time.Time
	Ranks     []store.Rank
	Members   map[string]string // player -> rank name
}

// Session is the slice of the gateway session the bridge needs; the concrete
// type is *gateway.Session.
type Session interface {
	Send(ctx context.Context, line string) error
	Ready() bool
	OnChat(cb gateway.ChatCallback) int
	OnState(cb gateway.StateCallback) int
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Config struct {
	GuildID   string
	SelfName  string
	ChannelID string

	GuildPrefix   string // chat command routing into guild chat
	OfficerPrefix string
	CommandPrefix string // moderation commands

	MaxChatLen     int
	SendMinDelay   time.Duration
	CommandTimeout time.Duration
	SweepInterval  time.Duration
	RosterDebounce time.Duration
	PaddingTokens  []string

	// AvatarURLTemplate renders a player's avatar reference; %s is the name.
	AvatarURLTemplate string
}

func (c Config) withDefaults() Config {
	if c.GuildPrefix == "" {
		c.GuildPrefix = "/gc"
	}
	if c.OfficerPrefix == "" {
		c.OfficerPrefix = "/oc"
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "/g"
	}
	if c.MaxChatLen <= 0 {
		c.MaxChatLen = 256
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.RosterDebounce <= 0 {
		c.RosterDebounce = 2 * time.Second
	}
	return c
}

// Bridge runs one guild link.
type Bridge struct {
	cfg  Config
	sess Session
	corr *correlator.Correlator
	que  *outbound.Queue
	oque *outbound.Queue
	rel  relay.Relay
	repo store.Repository
	lib  *respmatch.Library
	cat  *msgcat.Catalog

	mu   sync.Mutex
	link GuildLink

	events chan mcchat.Event

	rosterMu    sync.Mutex
	rosterTimer *time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, sess Session, rel relay.Relay, repo store.Repository, cat *msgcat.Catalog) *Bridge {
	cfg = cfg.withDefaults()
	b := &Bridge{
		cfg:    cfg,
		sess:   sess,
		rel:    rel,
		repo:   repo,
		lib:    respmatch.NewLibrary(),
		cat:    cat,
		events: make(chan mcchat.Event, 256),
		stopCh: make(chan struct{}),
		link: GuildLink{
			GuildID:   cfg.GuildID,
			ChannelID: cfg.ChannelID,
			Members:   make(map[string]string),
		},
	}
	b.corr = correlator.New(sess)
	b.que = outbound.NewQueue(outbound.Config{
		MaxLen:        cfg.MaxChatLen - len(cfg.GuildPrefix) - 1,
		MinDelay:      cfg.SendMinDelay,
		PaddingTokens: cfg.PaddingTokens,
	}, prefixSender{sess: sess, prefix: cfg.GuildPrefix + " "})
	b.oque = outbound.NewQueue(outbound.Config{
		MaxLen:        cfg.MaxChatLen - len(cfg.OfficerPrefix) - 1,
		MinDelay:      cfg.SendMinDelay,
		PaddingTokens: cfg.PaddingTokens,
	}, prefixSender{sess: sess, prefix: cfg.OfficerPrefix + " "})
	return b
}

// prefixSender routes queued chunks into one chat channel.
type prefixSender struct {
	sess   Session
	prefix string
}

func (p prefixSender) Send(ctx context.Context, line string) error {
	return p.sess.Send(ctx, p.prefix+line)
}

func (p prefixSender) Ready() bool { return p.sess.Ready() }

// Link loads persisted guild fields, hooks the session streams and starts
// the connection. Call Run afterwards to process events.
func (b *Bridge) Link(ctx context.Context) error {
	if b.repo != nil {
		rec, err := b.repo.Get(ctx, b.cfg.GuildID)
		if err != nil {
			obslog.L().Warn("bridge_load_failed",
				zap.String("guild", b.cfg.GuildID),
				zap.Error(err))
		} else if rec != nil {
			b.mu.Lock()
			b.link.MuteUntil = rec.MuteUntil
			b.link.Ranks = rec.Ranks
			if rec.Members != nil {
				b.link.Members = rec.Members
			}
			if rec.ChannelID != "" {
				b.link.ChannelID = rec.ChannelID
			}
			b.mu.Unlock()
		}
	}

	b.sess.OnChat(func(raw string) {
		ev := mcchat.Classify(raw, b.cfg.SelfName)
		select {
		case b.events <- ev:
		case <-b.stopCh:
		}
	})
	b.sess.OnState(b.onSessionState)
	b.rel.OnInbound(b.onRelayMessage)

	return b.sess.Start(ctx)
}

// Run processes the inbound event stream until ctx ends or Unlink is called.
func (b *Bridge) Run(ctx context.Context) {
	go b.que.Run(ctx)
	go b.oque.Run(ctx)
	b.corr.StartSweeper(ctx, b.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case ev := <-b.events:
			b.handleEvent(ctx, ev)
		}
	}
}

// Unlink tears the bridge down: session stopped, relay closed, state
// persisted one last time.
func (b *Bridge) Unlink(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.persist(ctx)
	err := b.sess.Stop(ctx)
	if cerr := b.rel.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *Bridge) handleEvent(ctx context.Context, ev mcchat.Event) {
	b.corr.Observe(ev)

	switch ev.Type {
	case mcchat.EventGuild, mcchat.EventOfficer, mcchat.EventParty:
		if ev.Self {
			return
		}
		b.postRelay(ctx, ev.Author, ev.Plain)
	case mcchat.EventSystem:
		b.handleSystem(ctx, ev)
	}
}

func (b *Bridge) handleSystem(ctx context.Context, ev mcchat.Event) {
	rule, caps := matchSystem(ev.Plain)
	if rule == nil {
		obslog.L().Debug("system_unmatched",
			zap.String("guild", b.cfg.GuildID),
			zap.String("line", ev.Plain))
		return
	}

	switch rule.action {
	case actionMemberJoined:
		b.updateMember(caps["Player"], "Member")
		b.scheduleRosterPersist()
	case actionMemberLeft:
		b.removeMember(caps["Player"])
		b.scheduleRosterPersist()
	case actionMemberKicked:
		b.removeMember(caps["Target"])
		b.scheduleRosterPersist()
	case actionRankChanged:
		b.updateMember(caps["Target"], caps["NewRank"])
		b.scheduleRosterPersist()
	case actionGuildMuted:
		d := parseMuteDuration(caps["Duration"])
		b.mu.Lock()
		b.link.MuteUntil = time.Now().Add(d)
		b.mu.Unlock()
		b.persistAsync(ctx)
	case actionGuildUnmuted:
		b.mu.Lock()
		b.link.MuteUntil = time.Time{}
		b.mu.Unlock()
		b.persistAsync(ctx)
	case actionPlayerMuted:
		if strings.EqualFold(caps["Target"], b.cfg.SelfName) {
			d := parseMuteDuration(caps["Duration"])
			b.mu.Lock()
			b.link.MuteUntil = time.Now().Add(d)
			b.mu.Unlock()
			b.persistAsync(ctx)
		}
	case actionPlayerUnmuted:
		if strings.EqualFold(caps["Target"], b.cfg.SelfName) {
			b.mu.Lock()
			b.link.MuteUntil = time.Time{}
			b.mu.Unlock()
			b.persistAsync(ctx)
		}
	}

	if rule.template == "" {
		return
	}
	text, err := b.cat.Render(rule.template, caps)
	if err != nil {
		obslog.L().Warn("announce_render_failed",
			zap.String("template", rule.template),
			zap.Error(err))
		text = ev.Plain
	}
	b.postRelay(ctx, "", text)
}

// onRelayMessage shapes one platform message into guild chat.
func (b *Bridge) onRelayMessage(authorID, authorName, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	ctx := context.Background()

	if b.Muted() {
		if notice, err := b.cat.Render("notice.chat_muted", nil); err == nil {
			b.postRelay(ctx, "", notice)
		}
		obslog.L().Info("relay_dropped_muted",
			zap.String("guild", b.cfg.GuildID),
			zap.String("author", authorID))
		return
	}

	line := text
	if authorName != "" {
		line = authorName + ": " + text
	}
	b.que.Enqueue(line)
}

// RunCommand executes one moderation command against this bridge's session
// and waits for the correlated response.
func (b *Bridge) RunCommand(ctx context.Context, family respmatch.Family, params respmatch.Params, args string) (mcchat.Event, error) {
	return b.RunCommandKeyed(ctx, family, params, args, "")
}

// RunCommandKeyed is RunCommand with an abort handle: while the command is in
// flight it can be cancelled through AbortCommand(handleKey). Callers key it
// by the platform message that triggered the command.
func (b *Bridge) RunCommandKeyed(ctx context.Context, family respmatch.Family, params respmatch.Params, args, handleKey string) (mcchat.Event, error) {
	command := strings.TrimSpace(b.cfg.CommandPrefix + " " + args)
	p, err := b.corr.Execute(ctx, correlator.CommandSpec{
		Command:   command,
		Success:   b.lib.Success(family, params),
		Abort:     b.lib.Abort(family, params),
		Timeout:   b.cfg.CommandTimeout,
		HandleKey: handleKey,
	})
	if err != nil {
		return mcchat.Event{}, err
	}
	ev, err := p.Wait(ctx)
	b.audit(command, err)
	return ev, err
}

// AbortCommand cancels the in-flight command registered under handleKey.
func (b *Bridge) AbortCommand(handleKey string) bool {
	return b.corr.Abort(handleKey)
}

// SayOfficer queues a line into officer chat, shaped like any outbound send.
func (b *Bridge) SayOfficer(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.oque.Enqueue(text)
}

// Muted reports whether guild chat (or the bridging account) is muted.
func (b *Bridge) Muted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.link.MuteUntil.IsZero() && time.Now().Before(b.link.MuteUntil)
}

// Roster returns a copy of the member -> rank map.
func (b *Bridge) Roster() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.link.Members))
	for k, v := range b.link.Members {
		out[k] = v
	}
	return out
}

func (b *Bridge) onSessionState(st gateway.State) {
	switch st {
	case gateway.StateDisconnected:
		b.corr.FailAll(gateway.ErrTransient)
		if notice, err := b.cat.Render("notice.disconnected", nil); err == nil {
			b.postRelay(context.Background(), "", notice)
		}
	case gateway.StateReady:
		if notice, err := b.cat.Render("notice.connected", nil); err == nil {
			b.postRelay(context.Background(), "", notice)
		}
	}
}

func (b *Bridge) postRelay(ctx context.Context, author, text string) {
	avatar := ""
	if author != "" && b.cfg.AvatarURLTemplate != "" {
		avatar = fmt.Sprintf(b.cfg.AvatarURLTemplate, author)
	}
	postCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := b.rel.Post(postCtx, author, avatar, text); err != nil {
		obslog.L().Warn("relay_post_failed",
			zap.String("guild", b.cfg.GuildID),
			zap.Error(err))
	}
}

func (b *Bridge) updateMember(player, rank string) {
	if player == "" {
		return
	}
	b.mu.Lock()
	b.link.Members[player] = rank
	b.mu.Unlock()
}

func (b *Bridge) removeMember(player string) {
	if player == "" {
		return
	}
	b.mu.Lock()
	delete(b.link.Members, player)
	b.mu.Unlock()
}

// scheduleRosterPersist debounces bursts of membership lines into one write.
func (b *Bridge) scheduleRosterPersist() {
	b.rosterMu.Lock()
	defer b.rosterMu.Unlock()
	if b.rosterTimer != nil {
		b.rosterTimer.Stop()
	}
	b.rosterTimer = time.AfterFunc(b.cfg.RosterDebounce, func() {
		b.persist(context.Background())
	})
}

// persistAsync is the fire-and-forget write path; failures are logged only.
func (b *Bridge) persistAsync(ctx context.Context) {
	go b.persist(ctx)
}

func (b *Bridge) persist(ctx context.Context) {
	if b.repo == nil {
		return
	}
	b.mu.Lock()
	rec := &store.GuildRecord{
		GuildID:   b.link.GuildID,
		ChannelID: b.link.ChannelID,
		MuteUntil: b.link.MuteUntil,
		Ranks:     b.link.Ranks,
		Members:   b.membersLocked(),
	}
	b.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.repo.Save(saveCtx, b.cfg.GuildID, rec); err != nil {
		obslog.L().Warn("bridge_persist_failed",
			zap.String("guild", b.cfg.GuildID),
			zap.Error(err))
	}
}

// membersLocked copies the member map; caller must hold b.mu.
func (b *Bridge) membersLocked() map[string]string {
	out := make(map[string]string, len(b.link.Members))
	for k, v := range b.link.Members {
		out[k] = v
	}
	return out
}

type auditor interface {
	AuditCommand(ctx context.Context, guildID, command, outcome string) error
}

// audit records command outcomes when the repository supports it.
func (b *Bridge) audit(command string, err error) {
	a, ok := b.repo.(auditor)
	if !ok {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = err.Error()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if aerr := a.AuditCommand(ctx, b.cfg.GuildID, command, outcome); aerr != nil {
			obslog.L().Warn("command_audit_failed", zap.Error(aerr))
		}
	}()
}
