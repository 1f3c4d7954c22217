package pipeline

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/speechtrack/platform/internal/errors"
	"github.com/speechtrack/platform/internal/resilience"
)

// session wraps a backend WebSocket connection. Close is idempotent and
// safe on a session that never finished its handshake.
type session struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

// dialSession opens a WebSocket to a streaming backend, retrying
// transient dial failures with backoff.
func dialSession(ctx context.Context, url string, header http.Header) (*session, error) {
	var conn *websocket.Conn
	err := resilience.Retry(ctx, resilience.DialRetryConfig(), func() error {
		c, _, dialErr := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
		if dialErr != nil {
			return apperrors.Wrap(dialErr, apperrors.Network, "backend dial failed")
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session{conn: conn}, nil
}

// send writes a JSON message to the backend.
func (s *session) send(ctx context.Context, msg wireMessage) error {
	if err := wsjson.Write(ctx, s.conn, msg); err != nil {
		return apperrors.Wrap(err, apperrors.Network, "backend write failed")
	}
	return nil
}

// read blocks for the next backend message.
func (s *session) read(ctx context.Context) (wireMessage, error) {
	var msg wireMessage
	if err := wsjson.Read(ctx, s.conn, &msg); err != nil {
		return wireMessage{}, apperrors.Wrap(err, apperrors.Network, "backend read failed")
	}
	return msg, nil
}

// close sends a best-effort stop and closes the connection.
func (s *session) close(ctx context.Context) {
	s.closeOnce.Do(func() {
		_ = wsjson.Write(ctx, s.conn, wireMessage{Type: msgStop})
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
}
