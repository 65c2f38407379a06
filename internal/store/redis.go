package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis keeps guild-link fields in redis for deployments without a
// relational database. Records do not expire.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(redisURL string) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Redis{rdb: redis.NewClient(opt)}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) key(guildID string) string { return "guild:link:" + strings.TrimSpace(guildID) }

func (r *Redis) Get(ctx context.Context, guildID string) (*GuildRecord, error) {
	raw, err := r.rdb.Get(ctx, r.key(guildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec GuildRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Redis) Save(ctx context.Context, guildID string, rec *GuildRecord) error {
	if rec == nil {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(guildID), raw, 0).Err()
}
