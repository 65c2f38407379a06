package correlator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sable-mc/guildbridge/internal/gateway"
	"github.com/sable-mc/guildbridge/internal/mcchat"
	"github.com/sable-mc/guildbridge/internal/respmatch"
)

type fakeSender struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (f *fakeSender) Send(_ context.Context, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lines))
	copy(out, f.lines)
	return out
}

func event(line string) mcchat.Event {
	return mcchat.Classify(line, "BridgeBot")
}

func TestPromoteScenarioResolves(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender)

	p, err := c.Execute(context.Background(), CommandSpec{
		Command: "/g promote Foo",
		Success: respmatch.Success(respmatch.Promote, respmatch.Params{Target: "Foo"}),
		Abort:   respmatch.Abort(respmatch.Promote, respmatch.Params{Target: "Foo"}),
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := sender.sent(); len(got) != 1 || got[0] != "/g promote Foo" {
		t.Fatalf("sent = %v", got)
	}

	c.Observe(event("Guild > Somebody: unrelated chatter"))
	c.Observe(event("Foo was promoted from Member to Officer"))

	ev, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ev.Plain != "Foo was promoted from Member to Officer" {
		t.Fatalf("resolved with wrong event: %q", ev.Plain)
	}
	if c.Outstanding() != 0 {
		t.Fatalf("Outstanding = %d after resolve", c.Outstanding())
	}
}

func TestAbortPatternRejectsWithMatchedText(t *testing.T) {
	c := New(&fakeSender{})
	p, _ := c.Execute(context.Background(), CommandSpec{
		Command: "/g promote Foo",
		Success: respmatch.Success(respmatch.Promote, respmatch.Params{Target: "Foo"}),
		Abort:   respmatch.Abort(respmatch.Promote, respmatch.Params{Target: "Foo"}),
		Timeout: time.Second,
	})

	c.Observe(event("You must be the Guild Master to use that command!"))

	_, err := p.Wait(context.Background())
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
	if rej.Line != "You must be the Guild Master to use that command!" {
		t.Fatalf("matched text = %q", rej.Line)
	}
}

func TestTimeoutFiresAtDeadline(t *testing.T) {
	c := New(&fakeSender{})
	start := time.Now()
	p, _ := c.Execute(context.Background(), CommandSpec{
		Command: "/g promote Foo",
		Success: respmatch.Success(respmatch.Promote, respmatch.Params{Target: "Foo"}),
		Timeout: 80 * time.Millisecond,
	})

	_, err := p.Wait(context.Background())
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed < 80*time.Millisecond {
		t.Fatalf("timed out early after %v", elapsed)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout way past deadline: %v", elapsed)
	}
}

func TestCancelRejectsAsAborted(t *testing.T) {
	c := New(&fakeSender{})
	p, _ := c.Execute(context.Background(), CommandSpec{
		Command: "/g promote Foo",
		Success: respmatch.Success(respmatch.Promote, respmatch.Params{Target: "Foo"}),
		Timeout: time.Minute,
	})
	p.Cancel()
	_, err := p.Wait(context.Background())
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
}

func TestAbortHandleIsSingleUse(t *testing.T) {
	c := New(&fakeSender{})
	p, _ := c.Execute(context.Background(), CommandSpec{
		Command:   "/g mute Foo 1h",
		Success:   respmatch.Success(respmatch.Mute, respmatch.Params{Target: "Foo"}),
		Timeout:   time.Minute,
		HandleKey: "msg-123",
	})
	if !c.Abort("msg-123") {
		t.Fatal("first Abort must find the handle")
	}
	if c.Abort("msg-123") {
		t.Fatal("second Abort must miss")
	}
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
}

func TestFailAllRejectsEveryPendingOnce(t *testing.T) {
	c := New(&fakeSender{})
	var pendings []*Pending
	for _, target := range []string{"A", "B", "C"} {
		p, _ := c.Execute(context.Background(), CommandSpec{
			Command: "/g promote " + target,
			Success: respmatch.Success(respmatch.Promote, respmatch.Params{Target: target}),
			Timeout: time.Minute,
		})
		pendings = append(pendings, p)
	}

	c.FailAll(gateway.ErrTransient)

	for _, p := range pendings {
		_, err := p.Wait(context.Background())
		if !errors.Is(err, gateway.ErrTransient) {
			t.Fatalf("err = %v, want ErrTransient", err)
		}
	}
	if c.Outstanding() != 0 {
		t.Fatalf("Outstanding = %d", c.Outstanding())
	}
}

func TestSettlementIsExactlyOnce(t *testing.T) {
	c := New(&fakeSender{})
	p, _ := c.Execute(context.Background(), CommandSpec{
		Command: "/g promote Foo",
		Success: respmatch.Success(respmatch.Promote, respmatch.Params{Target: "Foo"}),
		Abort:   respmatch.Abort(respmatch.Promote, respmatch.Params{Target: "Foo"}),
		Timeout: 50 * time.Millisecond,
	})

	// bombard with every settlement path; only the first may win
	c.Observe(event("Foo was promoted from Member to Officer"))
	c.Observe(event("You must be the Guild Master to use that command!"))
	p.Cancel()
	c.FailAll(gateway.ErrTransient)
	time.Sleep(80 * time.Millisecond) // let the timer fire too

	ev, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("first settlement was a resolve; Wait returned %v", err)
	}
	if ev.Plain != "Foo was promoted from Member to Officer" {
		t.Fatalf("event = %q", ev.Plain)
	}
}

func TestConcurrentPendingMatchIndependently(t *testing.T) {
	c := New(&fakeSender{})
	pa, _ := c.Execute(context.Background(), CommandSpec{
		Command: "/g promote Foo",
		Success: respmatch.Success(respmatch.Promote, respmatch.Params{Target: "Foo"}),
		Timeout: time.Second,
	})
	pb, _ := c.Execute(context.Background(), CommandSpec{
		Command: "/g kick Bar reason",
		Success: respmatch.Success(respmatch.Kick, respmatch.Params{Target: "Bar"}),
		Timeout: time.Second,
	})

	c.Observe(event("Bar was kicked from the guild by Admin!"))
	select {
	case <-pa.Done():
		t.Fatal("promote settled by the kick response")
	default:
	}
	if _, err := pb.Wait(context.Background()); err != nil {
		t.Fatalf("kick Wait: %v", err)
	}

	c.Observe(event("Foo was promoted from Member to Officer"))
	if _, err := pa.Wait(context.Background()); err != nil {
		t.Fatalf("promote Wait: %v", err)
	}
}
