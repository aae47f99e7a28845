package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/alert-relay/internal/domain"
)

// Conn is one live overlay connection. Implementations must be safe for
// concurrent Send and Ping.
type Conn interface {
	// Send writes one complete text message.
	Send(ctx context.Context, payload []byte) error
	// Ping returns nil once the peer has answered.
	Ping(ctx context.Context) error
	// Close runs the closing handshake and may block until the peer answers.
	Close(reason string) error
	// Terminate drops the connection without a handshake.
	Terminate() error
}

// Hooks carries the metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnSendFailed func()
}

// ackEnvelope is the first message on every registered connection.
type ackEnvelope struct {
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

var ackPayload, _ = json.Marshal(ackEnvelope{Kind: "connection", Status: "connected"})

type client struct {
	conn        Conn
	recipientID string
	alive       bool
}

// Hub tracks open overlay connections tagged by recipient and fans alerts
// out to the matching ones.
type Hub struct {
	mu      sync.RWMutex
	clients map[Conn]*client

	heartbeat time.Duration
	logger    *zap.Logger
	hooks     Hooks
}

func NewHub(heartbeat time.Duration, logger *zap.Logger, hooks Hooks) *Hub {
	if hooks.OnSendFailed == nil {
		hooks.OnSendFailed = func() {}
	}
	return &Hub{
		clients:   make(map[Conn]*client),
		heartbeat: heartbeat,
		logger:    logger,
		hooks:     hooks,
	}
}

// Register sends the connection ack and then tags conn with recipientID.
// Deliver cannot reach conn before the ack is written; if the ack fails the
// connection is never registered.
func (h *Hub) Register(ctx context.Context, conn Conn, recipientID string) error {
	if err := conn.Send(ctx, ackPayload); err != nil {
		return fmt.Errorf("%w: connection ack: %w", domain.ErrDelivery, err)
	}

	h.mu.Lock()
	h.clients[conn] = &client{conn: conn, recipientID: recipientID, alive: true}
	h.mu.Unlock()

	h.logger.Info("overlay connected", zap.String("recipient_id", domain.ShortID(recipientID)))
	return nil
}

// Unregister removes conn. Unknown connections are ignored.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		h.logger.Info("overlay disconnected", zap.String("recipient_id", domain.ShortID(c.recipientID)))
	}
}

// MarkAlive records a pong from conn.
func (h *Hub) MarkAlive(conn Conn) {
	h.mu.Lock()
	if c, ok := h.clients[conn]; ok {
		c.alive = true
	}
	h.mu.Unlock()
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver serializes a once and sends it to every connection registered for
// a.RecipientID. A failing connection is logged and skipped; it never stops
// delivery to the others. Returns the number of successful sends, which may
// be zero when no overlay is open.
func (h *Hub) Deliver(ctx context.Context, a *domain.Alert) int {
	payload, err := json.Marshal(a)
	if err != nil {
		h.logger.Error("encode alert", zap.String("alert_id", a.ID), zap.Error(err))
		return 0
	}

	targets := h.connectionsFor(a.RecipientID)
	sent := 0
	for _, conn := range targets {
		if err := conn.Send(ctx, payload); err != nil {
			h.hooks.OnSendFailed()
			h.logger.Warn("overlay send failed",
				zap.String("alert_id", a.ID),
				zap.String("recipient_id", domain.ShortID(a.RecipientID)),
				zap.Error(err),
			)
			if errors.Is(err, domain.ErrConnectionClosed) {
				h.Unregister(conn)
			}
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) connectionsFor(recipientID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Conn
	for conn, c := range h.clients {
		if c.recipientID == recipientID {
			out = append(out, conn)
		}
	}
	return out
}

// Run sweeps connections every heartbeat interval until ctx is cancelled,
// then closes every remaining connection concurrently.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.Info("heartbeat started", zap.Duration("interval", h.heartbeat))

	for {
		select {
		case <-ctx.Done():
			h.closeAll("server shutting down")
			h.logger.Info("heartbeat stopping")
			return
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

// Sweep runs one heartbeat round: connections that did not answer the
// previous ping are terminated, the rest are marked not-alive and pinged.
// It returns once every ping has been answered or has timed out.
func (h *Hub) Sweep(ctx context.Context) {
	var dead, live []*client

	h.mu.Lock()
	for conn, c := range h.clients {
		if !c.alive {
			dead = append(dead, c)
			delete(h.clients, conn)
			continue
		}
		c.alive = false
		live = append(live, c)
	}
	h.mu.Unlock()

	for _, c := range dead {
		_ = c.conn.Terminate()
		h.logger.Info("terminated unresponsive overlay", zap.String("recipient_id", domain.ShortID(c.recipientID)))
	}

	var wg sync.WaitGroup
	for _, c := range live {
		wg.Add(1)
		go func(conn Conn) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.heartbeat)
			defer cancel()
			if err := conn.Ping(pctx); err == nil {
				h.MarkAlive(conn)
			}
		}(c.conn)
	}
	wg.Wait()
}

func (h *Hub) closeAll(reason string) {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[Conn]*client)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn Conn) {
			defer wg.Done()
			_ = conn.Close(reason)
		}(conn)
	}
	wg.Wait()
}
