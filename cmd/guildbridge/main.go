package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sable-mc/guildbridge/internal/bridge"
	appcfg "github.com/sable-mc/guildbridge/internal/config"
	"github.com/sable-mc/guildbridge/internal/gateway"
	"github.com/sable-mc/guildbridge/internal/msgcat"
	"github.com/sable-mc/guildbridge/internal/obslog"
	"github.com/sable-mc/guildbridge/internal/relay"
	"github.com/sable-mc/guildbridge/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer obslog.Sync()

	guilds, err := appcfg.LoadGuilds(cfg.GuildsFile)
	if err != nil {
		obslog.L().Fatal("guilds_load_failed", zap.Error(err))
	}

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		obslog.L().Fatal("store_init_failed", zap.Error(err))
	}
	if closeRepo != nil {
		defer closeRepo()
	}

	cat, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		obslog.L().Fatal("msgcat_init_failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var bridges []*bridge.Bridge
	for _, g := range guilds {
		b, err := startBridge(ctx, cfg, g, repo, cat)
		if err != nil {
			obslog.L().Error("bridge_start_failed",
				zap.String("guild", g.GuildID),
				zap.Error(err))
			continue
		}
		bridges = append(bridges, b)
		obslog.L().Info("bridge_started",
			zap.String("guild", g.GuildID),
			zap.String("user", g.Username))
	}
	if len(bridges) == 0 {
		obslog.L().Fatal("no_bridges_started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("shutting_down")

	cancel()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	for _, b := range bridges {
		if err := b.Unlink(shutCtx); err != nil {
			obslog.L().Warn("bridge_unlink_failed", zap.Error(err))
		}
	}
}

func openRepository(cfg *appcfg.AppConfig) (store.Repository, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	case cfg.RedisURL != "":
		rd, err := store.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return rd, func() { _ = rd.Close() }, nil
	default:
		obslog.L().Warn("no_store_configured")
		return nil, nil, nil
	}
}

func startBridge(ctx context.Context, cfg *appcfg.AppConfig, g appcfg.GuildConfig, repo store.Repository, cat *msgcat.Catalog) (*bridge.Bridge, error) {
	rel, err := openRelay(g)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	sess := gateway.NewSession(gateway.Config{
		URL:            cfg.GatewayURL,
		Username:       g.Username,
		Token:          g.Token,
		BackoffBase:    cfg.BackoffBase,
		BackoffMax:     cfg.BackoffMax,
		MaxAuthRetries: cfg.MaxAuthRetries,
	})
	sess.SetFatalHandler(func(err error) {
		obslog.L().Error("gateway_fatal",
			zap.String("guild", g.GuildID),
			zap.Error(err))
		if notice, rerr := cat.Render("notice.auth_failed", nil); rerr == nil {
			nctx, ncancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer ncancel()
			_ = rel.Post(nctx, "", "", notice)
		}
	})

	b := bridge.New(bridge.Config{
		GuildID:           g.GuildID,
		SelfName:          g.Username,
		ChannelID:         g.Relay.ChannelID,
		GuildPrefix:       g.GuildPrefix,
		OfficerPrefix:     g.OfficerPrefix,
		CommandPrefix:     g.CommandPrefix,
		MaxChatLen:        cfg.MaxChatLen,
		SendMinDelay:      cfg.SendMinDelay,
		CommandTimeout:    cfg.CommandTimeout,
		SweepInterval:     cfg.SweepInterval,
		PaddingTokens:     cfg.PaddingTokens,
		AvatarURLTemplate: cfg.AvatarURLTemplate,
	}, sess, rel, repo, cat)

	if err := b.Link(ctx); err != nil {
		obslog.L().Warn("initial_connect_failed",
			zap.String("guild", g.GuildID),
			zap.Error(err))
	}
	go b.Run(ctx)
	return b, nil
}

func openRelay(g appcfg.GuildConfig) (relay.Relay, error) {
	switch g.Relay.Kind {
	case "discord":
		return relay.NewDiscord(g.Relay.Token, g.Relay.ChannelID)
	case "webhook":
		return relay.NewWebhook(g.Relay.WebhookURL), nil
	default:
		return nil, fmt.Errorf("unknown relay kind %q", g.Relay.Kind)
	}
}
