package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/livevad/internal/session"
	"github.com/MrWong99/livevad/pkg/types"
)

// wsTransport adapts a WebSocket connection to [session.Transport]. Binary
// messages carry audio; text messages are a protocol violation. Outbound
// events are written as JSON text messages.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

var _ session.Transport = (*wsTransport)(nil)

func newTransport(conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

// Receive reads the next binary message.
func (t *wsTransport) Receive(ctx context.Context) ([]byte, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		if isPeerClose(err) {
			return nil, fmt.Errorf("%w: %w", session.ErrConnectionClosed, err)
		}
		return nil, fmt.Errorf("websocket read: %w", err)
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("%w: %s message", session.ErrUnsupportedMessage, typ)
	}
	return data, nil
}

// Send writes ev as one JSON text message, bounded by the write timeout.
func (t *wsTransport) Send(ctx context.Context, ev types.SpeechEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if t.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.writeTimeout)
		defer cancel()
	}
	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// isPeerClose reports whether err means the client ended the stream, either
// with a close frame of any status or by dropping the TCP connection.
func isPeerClose(err error) bool {
	if websocket.CloseStatus(err) != -1 {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
