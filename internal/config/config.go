package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	GatewayURL string
	GuildsFile string

	RedisURL    string
	DatabaseURL string

	MessageDir string

	MaxChatLen        int
	SendMinDelay      time.Duration
	CommandTimeout    time.Duration
	SweepInterval     time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MaxAuthRetries    int
	AvatarURLTemplate string
	PaddingTokens     []string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		MaxChatLen:        256,
		SendMinDelay:      600 * time.Millisecond,
		CommandTimeout:    10 * time.Second,
		SweepInterval:     time.Minute,
		BackoffBase:       time.Second,
		BackoffMax:        60 * time.Second,
		MaxAuthRetries:    3,
		AvatarURLTemplate: "https://mc-heads.net/avatar/%s",
	}

	cfg.GatewayURL = strings.TrimSpace(os.Getenv("GATEWAY_URL"))
	cfg.GuildsFile = strings.TrimSpace(os.Getenv("GUILDS_FILE"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	if v := strings.TrimSpace(os.Getenv("MAX_CHAT_LEN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxChatLen = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEND_MIN_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SendMinDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("COMMAND_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CommandTimeout = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("BACKOFF_BASE_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BackoffBase = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("BACKOFF_MAX_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BackoffMax = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_AUTH_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAuthRetries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepInterval = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("AVATAR_URL_TEMPLATE")); v != "" {
		cfg.AvatarURLTemplate = v
	}
	if v := strings.TrimSpace(os.Getenv("PADDING_TOKENS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.PaddingTokens = append(cfg.PaddingTokens, s)
			}
		}
	}

	if cfg.GatewayURL == "" {
		return nil, errors.New("GATEWAY_URL is required")
	}
	if cfg.GuildsFile == "" {
		return nil, errors.New("GUILDS_FILE is required")
	}

	return cfg, nil
}
