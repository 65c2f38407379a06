// Package outbound shapes bridge traffic into sends the game server will
// accept: protocol-legal chunk sizes, padding to slip past the duplicate
// message filter, and a minimum delay between consecutive sends.
package outbound

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sable-mc/guildbridge/internal/obslog"
)

// DefaultPaddingTokens are appended to a chunk that repeats the previous
// send, so the remote's duplicate filter sees distinct text.
var DefaultPaddingTokens = []string{"⭍", "⁂", "۞", "⸎"}

// Session is the slice of the gateway session the queue needs.
type Session interface {
	Send(ctx context.Context, line string) error
	Ready() bool
}

type Config struct {
	MaxLen        int           // protocol chat length cap (100 or 256)
	MinDelay      time.Duration // delay gate between consecutive sends
	MaxQueueDepth int           // beyond this, oldest entries are dropped
	PaddingTokens []string
}

func (c Config) withDefaults() Config {
	if c.MaxLen <= 0 {
		c.MaxLen = 256
	}
	if c.MinDelay <= 0 {
		c.MinDelay = 600 * time.Millisecond
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = 100
	}
	if len(c.PaddingTokens) == 0 {
		c.PaddingTokens = DefaultPaddingTokens
	}
	return c
}

// Chunk splits text into pieces no longer than max runes, preferring to
// break at whitespace. Whitespace at break points is consumed.
func Chunk(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var out []string
	for len(runes) > max {
		cut := -1
		for i := max; i > 0; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		if cut <= 0 {
			out = append(out, string(runes[:max]))
			runes = runes[max:]
			continue
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut+1:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// Queue serializes sends onto one session. Enqueue never blocks and never
// fails; overload drops the oldest entry with a logged warning.
type Queue struct {
	cfg  Config
	sess Session

	mu       sync.Mutex
	items    []string
	lastWire string

	notify chan struct{}
}

func NewQueue(cfg Config, sess Session) *Queue {
	return &Queue{
		cfg:    cfg.withDefaults(),
		sess:   sess,
		notify: make(chan struct{}, 1),
	}
}

// Enqueue splits text into protocol-legal chunks and queues them. The split
// reserves room for anti-spam padding so a padded chunk stays legal.
func (q *Queue) Enqueue(text string) {
	chunks := Chunk(text, q.cfg.MaxLen-q.padReserve())
	if len(chunks) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, chunks...)
	dropped := 0
	for len(q.items) > q.cfg.MaxQueueDepth {
		q.items = q.items[1:]
		dropped++
	}
	depth := len(q.items)
	q.mu.Unlock()

	if dropped > 0 {
		obslog.L().Warn("outbound_overflow",
			zap.Int("dropped", dropped),
			zap.Int("depth", depth))
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Run consumes the queue until ctx is done. Sends wait for the session to be
// Ready and are spaced at least MinDelay apart.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		}
		for {
			line, ok := q.pop()
			if !ok {
				break
			}
			if !q.waitReady(ctx) {
				return
			}
			wire := q.antiSpam(line)
			if err := q.sess.Send(ctx, wire); err != nil {
				obslog.L().Warn("outbound_send_failed",
					zap.String("line", wire),
					zap.Error(err))
				continue
			}
			q.mu.Lock()
			q.lastWire = wire
			q.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-time.After(q.cfg.MinDelay):
			}
		}
	}
}

// Depth reports how many chunks are waiting.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	line := q.items[0]
	q.items = q.items[1:]
	return line, true
}

func (q *Queue) waitReady(ctx context.Context) bool {
	for !q.sess.Ready() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return true
}

// antiSpam appends a random filler token when line repeats the previous
// wire text (after whitespace/case normalization).
func (q *Queue) antiSpam(line string) string {
	q.mu.Lock()
	last := q.lastWire
	q.mu.Unlock()
	if last == "" || normalize(line) != normalize(last) {
		return line
	}
	tok := q.cfg.PaddingTokens[rand.IntN(len(q.cfg.PaddingTokens))]
	return line + " " + tok
}

func (q *Queue) padReserve() int {
	longest := 0
	for _, t := range q.cfg.PaddingTokens {
		if n := len([]rune(t)); n > longest {
			longest = n
		}
	}
	return longest + 1
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
