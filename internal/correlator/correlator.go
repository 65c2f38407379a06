// Package correlator matches commands sent into a game session against the
// chat lines the server answers with. Responses arrive on the same noisy
// stream as everyone's chatter, so each in-flight command holds a success
// pattern (and optionally an abort pattern) and is settled by the first line
// that matches, by its deadline, or by an explicit cancel.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sable-mc/guildbridge/internal/mcchat"
	"github.com/sable-mc/guildbridge/internal/obslog"
	"github.com/sable-mc/guildbridge/internal/ttlcache"
)

var (
	// ErrTimeout means the awaited response never arrived.
	ErrTimeout = errors.New("command response timed out")
	// ErrAborted means the caller cancelled while the command was in flight.
	ErrAborted = errors.New("command aborted")
)

// RejectedError carries the server's recognized error line verbatim.
type RejectedError struct {
	Command string
	Line    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("command %q rejected: %s", e.Command, e.Line)
}

// Sender is the slice of the gateway session the correlator needs.
type Sender interface {
	Send(ctx context.Context, line string) error
}

// CommandSpec describes one command execution.
type CommandSpec struct {
	Command string // full chat line, channel prefix already applied
	Success *regexp.Regexp
	Abort   *regexp.Regexp // optional
	Timeout time.Duration
	// HandleKey optionally registers the pending command for later Abort()
	// by an external id (e.g. the platform message that triggered it).
	HandleKey string
}

// Pending is the in-flight correlation; it settles exactly once.
type Pending struct {
	ID   string
	spec CommandSpec

	c     *Correlator
	timer *time.Timer

	once sync.Once
	done chan struct{}
	ev   mcchat.Event
	err  error
}

// Wait blocks until the command settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) (mcchat.Event, error) {
	select {
	case <-ctx.Done():
		return mcchat.Event{}, ctx.Err()
	case <-p.done:
		return p.ev, p.err
	}
}

// Done exposes the settlement signal for select-based callers.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Cancel rejects the command as aborted. Safe to call at any point; a
// settled command is left alone.
func (p *Pending) Cancel() {
	p.settle(mcchat.Event{}, fmt.Errorf("%w: %s", ErrAborted, p.spec.Command))
}

func (p *Pending) settle(ev mcchat.Event, err error) {
	p.once.Do(func() {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.ev = ev
		p.err = err
		p.c.unregister(p)
		close(p.done)
	})
}

// Correlator holds the pending commands for one session, tested against
// inbound events in registration order.
type Correlator struct {
	sender Sender

	mu      sync.Mutex
	pending []*Pending

	handles *ttlcache.Cache[string, *Pending]
}

func New(sender Sender) *Correlator {
	return &Correlator{
		sender:  sender,
		handles: ttlcache.New[string, *Pending](5 * time.Minute),
	}
}

// Execute registers the pending command and sends the command text. The
// registration happens before the send so an immediate response cannot slip
// past the matcher.
func (c *Correlator) Execute(ctx context.Context, spec CommandSpec) (*Pending, error) {
	if spec.Success == nil {
		return nil, errors.New("command spec needs a success pattern")
	}
	if spec.Timeout <= 0 {
		spec.Timeout = 10 * time.Second
	}

	p := &Pending{
		ID:   uuid.NewString(),
		spec: spec,
		c:    c,
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.pending = append(c.pending, p)
	c.mu.Unlock()

	if spec.HandleKey != "" {
		c.handles.Ensure(spec.HandleKey, func() *Pending { return p })
	}

	p.timer = time.AfterFunc(spec.Timeout, func() {
		p.settle(mcchat.Event{}, fmt.Errorf("%w: %s", ErrTimeout, spec.Command))
	})

	if err := c.sender.Send(ctx, spec.Command); err != nil {
		p.settle(mcchat.Event{}, fmt.Errorf("send %q: %w", spec.Command, err))
		return nil, err
	}

	obslog.L().Debug("command_sent",
		zap.String("id", p.ID),
		zap.String("command", spec.Command))
	return p, nil
}

// Observe feeds one classified chat event to every pending command, oldest
// registration first. Success patterns win over abort patterns per command.
func (c *Correlator) Observe(ev mcchat.Event) {
	c.mu.Lock()
	snapshot := make([]*Pending, len(c.pending))
	copy(snapshot, c.pending)
	c.mu.Unlock()

	for _, p := range snapshot {
		if p.spec.Success.MatchString(ev.Plain) {
			p.settle(ev, nil)
			continue
		}
		if p.spec.Abort != nil && p.spec.Abort.MatchString(ev.Plain) {
			p.settle(mcchat.Event{}, &RejectedError{Command: p.spec.Command, Line: ev.Plain})
		}
	}
}

// Abort cancels the pending command registered under key, if still in
// flight. The handle is single use.
func (c *Correlator) Abort(key string) bool {
	p, ok := c.handles.Take(key)
	if !ok {
		return false
	}
	p.Cancel()
	return true
}

// FailAll rejects every outstanding command, typically with a transient
// error when the session drops.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	snapshot := make([]*Pending, len(c.pending))
	copy(snapshot, c.pending)
	c.mu.Unlock()

	for _, p := range snapshot {
		p.settle(mcchat.Event{}, fmt.Errorf("%s: %w", p.spec.Command, err))
	}
}

// StartSweeper periodically expires stale abort handles.
func (c *Correlator) StartSweeper(ctx context.Context, interval time.Duration) {
	c.handles.StartSweeper(ctx, interval)
}

// Outstanding reports how many commands are still in flight.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) unregister(p *Pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.pending {
		if q == p {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
}
