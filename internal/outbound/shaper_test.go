package outbound

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sable-mc/guildbridge/internal/obslog"
)

type fakeSession struct {
	mu    sync.Mutex
	ready bool
	sends []string
}

func (f *fakeSession) Send(_ context.Context, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, line)
	return nil
}

func (f *fakeSession) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSession) setReady(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = v
}

func (f *fakeSession) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}

func waitSends(t *testing.T, f *fakeSession, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.sent(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never saw %d sends, got %v", n, f.sent())
	return nil
}

func TestChunkSplitsAtWhitespace(t *testing.T) {
	text := strings.Repeat("word ", 30) // 150 chars
	chunks := Chunk(text, 100)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	for _, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk over limit: %d", len([]rune(c)))
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Fatalf("chunk has ragged whitespace: %q", c)
		}
		if strings.Contains(c, "wo rd") {
			t.Fatalf("split mid-word: %q", c)
		}
	}
}

func TestChunkHardSplitWithoutWhitespace(t *testing.T) {
	chunks := Chunk(strings.Repeat("a", 300), 256)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if len(chunks[0]) != 256 || len(chunks[1]) != 44 {
		t.Fatalf("chunk lengths = %d, %d", len(chunks[0]), len(chunks[1]))
	}
}

func TestChunkRoundTrip(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 10)
	chunks := Chunk(text, 100)
	rejoined := strings.Join(chunks, " ")
	norm := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	if norm(rejoined) != norm(text) {
		t.Fatalf("round trip lost text:\n%q\n%q", norm(rejoined), norm(text))
	}
}

func TestDuplicateSendsGetPadding(t *testing.T) {
	sess := &fakeSession{ready: true}
	q := NewQueue(Config{MinDelay: time.Millisecond}, sess)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("hello guild")
	q.Enqueue("hello guild")
	sends := waitSends(t, sess, 2)

	if sends[0] != "hello guild" {
		t.Fatalf("first send altered: %q", sends[0])
	}
	if sends[1] == sends[0] {
		t.Fatal("consecutive identical sends must differ on the wire")
	}
	if !strings.HasPrefix(sends[1], "hello guild ") {
		t.Fatalf("padding must append, got %q", sends[1])
	}
}

func TestQueueWaitsForReady(t *testing.T) {
	sess := &fakeSession{}
	q := NewQueue(Config{MinDelay: time.Millisecond}, sess)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("queued while down")
	time.Sleep(150 * time.Millisecond)
	if got := sess.sent(); len(got) != 0 {
		t.Fatalf("sent while not ready: %v", got)
	}

	sess.setReady(true)
	sends := waitSends(t, sess, 1)
	if sends[0] != "queued while down" {
		t.Fatalf("send = %q", sends[0])
	}
}

func TestOverflowDropsOldestWithWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	obslog.SetLogger(zap.New(core))
	defer obslog.SetLogger(zap.NewNop())

	sess := &fakeSession{} // never ready, so nothing drains
	q := NewQueue(Config{MaxQueueDepth: 3, MinDelay: time.Millisecond}, sess)

	for _, line := range []string{"one", "two", "three", "four", "five"} {
		q.Enqueue(line)
	}
	if q.Depth() != 3 {
		t.Fatalf("Depth = %d, want 3", q.Depth())
	}
	if logs.FilterMessage("outbound_overflow").Len() == 0 {
		t.Fatal("overflow must log a warning")
	}
}

func TestMinDelayBetweenSends(t *testing.T) {
	sess := &fakeSession{ready: true}
	q := NewQueue(Config{MinDelay: 60 * time.Millisecond}, sess)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	start := time.Now()
	q.Enqueue("first")
	q.Enqueue("second")
	q.Enqueue("third")
	waitSends(t, sess, 3)
	if elapsed := time.Since(start); elapsed < 120*time.Millisecond {
		t.Fatalf("three sends finished in %v, delay gate not enforced", elapsed)
	}
}
