package session

import (
	"errors"
	"fmt"

	"github.com/MrWong99/livevad/pkg/audio"
)

var (
	// ErrConnectionClosed is returned by [Transport.Receive] when the peer
	// ended the stream. It is the normal end of a session, not a failure.
	ErrConnectionClosed = errors.New("session: connection closed")

	// ErrUnsupportedMessage is returned by [Transport.Receive] for inbound
	// messages that cannot carry audio (e.g. WebSocket text frames).
	ErrUnsupportedMessage = errors.New("session: unsupported message type")
)

// ScoringError reports that the scorer failed on a window. It is fatal to
// the session: no decision is guessed from a failed call.
type ScoringError struct {
	// Window is the zero-based index of the failed window within the session.
	Window int64

	Err error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("session: scoring window %d: %v", e.Window, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

// ErrorKind classifies err for the session error metric and logs.
func ErrorKind(err error) string {
	var (
		decErr   *audio.DecodeError
		scoreErr *ScoringError
		sendErr  *SendError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &decErr):
		return "decode"
	case errors.As(err, &scoreErr):
		return "scoring"
	case errors.Is(err, ErrUnsupportedMessage):
		return "protocol"
	case errors.As(err, &sendErr):
		return "send"
	default:
		return "transport"
	}
}

// SendError wraps a failure to deliver an event to the client.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "session: send event: " + e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }
