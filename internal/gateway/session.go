package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/sable-mc/guildbridge/internal/obslog"
)

type ChatCallback func(raw string)

type StateCallback func(State)

type chatCbEntry struct {
	id       int
	callback ChatCallback
}

type stateCbEntry struct {
	id       int
	callback StateCallback
}

// Config holds per-guild connection settings.
type Config struct {
	URL      string
	Username string
	Token    string

	Locale       string
	ViewDistance int
	ChatFlags    string

	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MaxAuthRetries int
	DialTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Locale == "" {
		c.Locale = "en_US"
	}
	if c.ViewDistance <= 0 {
		c.ViewDistance = 4
	}
	if c.ChatFlags == "" {
		c.ChatFlags = "enabled"
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 2 * time.Minute
	}
	if c.MaxAuthRetries <= 0 {
		c.MaxAuthRetries = 3
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// Session owns the persistent connection to the game server for one guild:
// login handshake, keep-alive echoing, chat fan-out and reconnection with
// capped exponential backoff. At most one live connection attempt at a time.
type Session struct {
	cfg Config

	mu           sync.Mutex
	conn         *websocket.Conn
	state        State
	reconnecting bool
	fatalDone    bool
	authFailures int
	attempt      int

	cbM      sync.RWMutex
	nextCbID int
	chatCbs  []chatCbEntry
	stateCbs []stateCbEntry

	writeM sync.Mutex

	onFatal func(error)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewSession(cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:        cfg.withDefaults(),
		state:      StateIdle,
		stopCh:     make(chan struct{}),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
}

// SetFatalHandler registers the callback invoked when authentication fails
// past the bounded retry count. The session stops reconnecting afterwards.
func (s *Session) SetFatalHandler(fn func(error)) { s.onFatal = fn }

// Start connects and begins the login handshake. Idempotent: a session that
// is already connecting or connected is left alone.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.fatalDone || (s.state != StateIdle && s.state != StateDisconnected) || s.reconnecting {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	s.setState(StateConnecting)
	if err := s.dial(ctx); err != nil {
		s.scheduleReconnect()
		return err
	}
	return nil
}

// dial performs one connection attempt: websocket handshake plus the login
// packet. It moves the session to LoggingIn on success and Disconnected on
// failure; scheduling a retry is the caller's business.
func (s *Session) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.cfg.URL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	login := Packet{Type: PacketLogin, Name: s.cfg.Username, Token: s.cfg.Token}
	if err := s.write(s.rootCtx, &login); err != nil {
		s.dropConn()
		s.setState(StateDisconnected)
		return fmt.Errorf("send login: %w", err)
	}
	s.setState(StateLoggingIn)

	s.wg.Add(1)
	go s.listen(conn)
	return nil
}

func (s *Session) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		var pkt Packet
		if err := wsjson.Read(s.rootCtx, conn, &pkt); err != nil {
			if s.isStopping() {
				return
			}
			s.onConnectionLost("read: " + err.Error())
			return
		}

		switch pkt.Type {
		case PacketLoginSuccess:
			s.mu.Lock()
			s.authFailures = 0
			s.mu.Unlock()
			s.setState(StateSpawned)
			settings := Packet{
				Type:         PacketSettings,
				Locale:       s.cfg.Locale,
				ViewDistance: s.cfg.ViewDistance,
				ChatFlags:    s.cfg.ChatFlags,
			}
			if err := s.write(s.rootCtx, &settings); err != nil {
				s.onConnectionLost("send settings: " + err.Error())
				return
			}

		case PacketLoginFailure:
			s.mu.Lock()
			s.authFailures++
			failures := s.authFailures
			s.mu.Unlock()
			if failures >= s.cfg.MaxAuthRetries {
				s.fatal(fmt.Errorf("%w: %s", ErrAuth, pkt.Reason))
				return
			}
			obslog.L().Warn("gateway_auth_retry",
				zap.String("user", s.cfg.Username),
				zap.Int("failures", failures),
				zap.String("reason", pkt.Reason))
			s.onConnectionLost("login failure: " + pkt.Reason)
			return

		case PacketKeepAlive:
			// the server kicks clients that stop echoing these; the first one
			// after spawn doubles as the readiness signal
			echo := Packet{Type: PacketKeepAlive, KeepAliveID: pkt.KeepAliveID}
			if err := s.write(s.rootCtx, &echo); err != nil {
				s.onConnectionLost("keep_alive echo: " + err.Error())
				return
			}
			s.mu.Lock()
			wasSpawned := s.state == StateSpawned
			if wasSpawned {
				s.attempt = 0
			}
			s.mu.Unlock()
			if wasSpawned {
				s.setState(StateReady)
			}

		case PacketChat:
			s.cbM.RLock()
			cbs := make([]chatCbEntry, len(s.chatCbs))
			copy(cbs, s.chatCbs)
			s.cbM.RUnlock()
			for _, e := range cbs {
				if e.callback != nil {
					e.callback(pkt.Message)
				}
			}

		case PacketDisconnect:
			obslog.L().Info("gateway_kicked",
				zap.String("user", s.cfg.Username),
				zap.String("reason", pkt.Reason))
			s.onConnectionLost("kicked: " + pkt.Reason)
			return
		}
	}
}

func (s *Session) onConnectionLost(detail string) {
	obslog.L().Warn("gateway_disconnect",
		zap.String("user", s.cfg.Username),
		zap.String("detail", detail))
	s.dropConn()
	s.setState(StateDisconnected)
	s.scheduleReconnect()
}

func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.fatalDone || s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.mu.Unlock()

	go func() {
		for {
			s.mu.Lock()
			s.attempt++
			delay := backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffMax, s.attempt)
			s.mu.Unlock()

			select {
			case <-s.stopCh:
				s.clearReconnecting()
				return
			case <-time.After(delay):
			}

			s.setState(StateConnecting)
			err := s.dial(s.rootCtx)
			if err == nil {
				s.clearReconnecting()
				return
			}
			obslog.L().Warn("gateway_reconnect_failed",
				zap.String("user", s.cfg.Username),
				zap.Int("attempt", s.currentAttempt()),
				zap.Error(err))
		}
	}()
}

// Send writes one chat line. Valid only in the Ready state.
func (s *Session) Send(ctx context.Context, line string) error {
	s.mu.Lock()
	ready := s.state == StateReady && s.conn != nil
	s.mu.Unlock()
	if !ready {
		return ErrNotReady
	}
	return s.write(ctx, &Packet{Type: PacketChat, Message: line})
}

func (s *Session) write(ctx context.Context, pkt *Packet) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotReady
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	s.writeM.Lock()
	defer s.writeM.Unlock()
	return wsjson.Write(ctx, conn, pkt)
}

func (s *Session) OnChat(cb ChatCallback) int {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCbID++
	s.chatCbs = append(s.chatCbs, chatCbEntry{id: s.nextCbID, callback: cb})
	return s.nextCbID
}

func (s *Session) RemoveChatCallback(id int) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	for i, e := range s.chatCbs {
		if e.id == id {
			s.chatCbs = append(s.chatCbs[:i], s.chatCbs[i+1:]...)
			break
		}
	}
}

func (s *Session) OnState(cb StateCallback) int {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCbID++
	s.stateCbs = append(s.stateCbs, stateCbEntry{id: s.nextCbID, callback: cb})
	return s.nextCbID
}

func (s *Session) RemoveStateCallback(id int) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	for i, e := range s.stateCbs {
		if e.id == id {
			s.stateCbs = append(s.stateCbs[:i], s.stateCbs[i+1:]...)
			break
		}
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Ready() bool { return s.State() == StateReady }

// Stop closes the connection and stops reconnecting. The session returns to
// Idle and can only be revived by a fresh Session.
func (s *Session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.dropConn()
	s.setState(StateIdle)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.rootCancel()
		return nil
	}
}

func (s *Session) fatal(err error) {
	s.mu.Lock()
	s.fatalDone = true
	s.mu.Unlock()
	obslog.L().Error("gateway_auth_fatal",
		zap.String("user", s.cfg.Username),
		zap.Error(err))
	s.dropConn()
	s.setState(StateDisconnected)
	if s.onFatal != nil {
		s.onFatal(err)
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()

	s.cbM.RLock()
	cbs := make([]stateCbEntry, len(s.stateCbs))
	copy(cbs, s.stateCbs)
	s.cbM.RUnlock()
	for _, e := range cbs {
		if e.callback != nil {
			e.callback(st)
		}
	}
}

func (s *Session) dropConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, "closing")
	}
}

func (s *Session) clearReconnecting() {
	s.mu.Lock()
	s.reconnecting = false
	s.mu.Unlock()
}

func (s *Session) currentAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

func (s *Session) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
