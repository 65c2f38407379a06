package gateway

import "errors"

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateLoggingIn
	StateSpawned
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLoggingIn:
		return "logging_in"
	case StateSpawned:
		return "spawned"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

var (
	// ErrNotReady is returned by Send outside the Ready state.
	ErrNotReady = errors.New("session not ready")
	// ErrTransient marks a recoverable connection loss; pending commands are
	// rejected with it while the session reconnects.
	ErrTransient = errors.New("transient network error")
	// ErrAuth marks a credential failure. Fatal once the bounded retry count
	// is exhausted.
	ErrAuth = errors.New("authentication failed")
)
