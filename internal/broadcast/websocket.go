package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/coder/websocket"

	"github.com/notifyhub/alert-relay/internal/domain"
)

// WSConn adapts a coder/websocket connection to Conn. The caller must keep
// a reader running (websocket.Conn.CloseRead) so pongs and close frames are
// processed.
type WSConn struct {
	c         *websocket.Conn
	writeWait time.Duration
}

func NewWSConn(c *websocket.Conn, writeWait time.Duration) *WSConn {
	return &WSConn{c: c, writeWait: writeWait}
}

func (w *WSConn) Send(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, w.writeWait)
	defer cancel()
	if err := w.c.Write(ctx, websocket.MessageText, payload); err != nil {
		return classify(err)
	}
	return nil
}

func (w *WSConn) Ping(ctx context.Context) error {
	if err := w.c.Ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (w *WSConn) Close(reason string) error {
	return w.c.Close(websocket.StatusGoingAway, reason)
}

func (w *WSConn) Terminate() error {
	return w.c.CloseNow()
}

func classify(err error) error {
	if websocket.CloseStatus(err) != -1 || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", domain.ErrConnectionClosed, err)
	}
	return err
}

var _ Conn = (*WSConn)(nil)
