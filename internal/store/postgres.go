package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Postgres is the durable guild-link repository plus a command audit trail.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) Get(ctx context.Context, guildID string) (*GuildRecord, error) {
	q := `SELECT channel_id, mute_until, ranks, members, updated_at FROM guild_links WHERE guild_id = $1`
	rec := &GuildRecord{GuildID: guildID}
	var ranksRaw, membersRaw []byte
	var muteUntil sql.NullTime
	err := p.db.QueryRowContext(ctx, q, guildID).Scan(&rec.ChannelID, &muteUntil, &ranksRaw, &membersRaw, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if muteUntil.Valid {
		rec.MuteUntil = muteUntil.Time
	}
	if len(ranksRaw) > 0 {
		if err := json.Unmarshal(ranksRaw, &rec.Ranks); err != nil {
			return nil, fmt.Errorf("decode ranks: %w", err)
		}
	}
	if len(membersRaw) > 0 {
		if err := json.Unmarshal(membersRaw, &rec.Members); err != nil {
			return nil, fmt.Errorf("decode members: %w", err)
		}
	}
	return rec, nil
}

func (p *Postgres) Save(ctx context.Context, guildID string, rec *GuildRecord) error {
	if rec == nil {
		return nil
	}
	ranksRaw, err := json.Marshal(rec.Ranks)
	if err != nil {
		return fmt.Errorf("encode ranks: %w", err)
	}
	membersRaw, err := json.Marshal(rec.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	q := `INSERT INTO guild_links (guild_id, channel_id, mute_until, ranks, members, updated_at)
      VALUES ($1,$2,$3,$4,$5,NOW())
      ON CONFLICT (guild_id) DO UPDATE SET
        channel_id=EXCLUDED.channel_id,
        mute_until=EXCLUDED.mute_until,
        ranks=EXCLUDED.ranks,
        members=EXCLUDED.members,
        updated_at=NOW()`
	_, err = p.db.ExecContext(ctx, q, guildID, rec.ChannelID, nullableTime(rec.MuteUntil), string(ranksRaw), string(membersRaw))
	return err
}

// AuditCommand records one executed moderation command and its outcome.
func (p *Postgres) AuditCommand(ctx context.Context, guildID, command, outcome string) error {
	q := `INSERT INTO command_audit (guild_id, command, outcome, executed_at) VALUES ($1,$2,$3,NOW())`
	_, err := p.db.ExecContext(ctx, q, guildID, command, outcome)
	return err
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
