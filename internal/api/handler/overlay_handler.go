package handler

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/notifyhub/alert-relay/internal/broadcast"
	"github.com/notifyhub/alert-relay/internal/domain"
)

// OverlayHandler upgrades overlay browser sources to WebSockets and hands
// them to the hub.
type OverlayHandler struct {
	hub       *broadcast.Hub
	writeWait time.Duration
	logger    *zap.Logger
}

func NewOverlayHandler(hub *broadcast.Hub, writeWait time.Duration, logger *zap.Logger) *OverlayHandler {
	return &OverlayHandler{hub: hub, writeWait: writeWait, logger: logger}
}

// Connect handles GET /ws?recipientId=<hash>
//
// broadcasterId is accepted as an alias for overlays generated before the
// rename. The handler blocks for the lifetime of the socket.
func (h *OverlayHandler) Connect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rid := q.Get("recipientId")
	if rid == "" {
		rid = q.Get("broadcasterId")
	}
	if rid == "" {
		respondError(w, http.StatusBadRequest, "recipientId query parameter is required")
		return
	}
	if !domain.IsRecipientID(rid) {
		respondError(w, http.StatusBadRequest, domain.ErrInvalidRecipient.Error())
		return
	}

	// the server's read/write timeouts would otherwise cut long-lived sockets
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	// overlays are embedded as browser sources from arbitrary origins
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer c.CloseNow()

	// push only: the background reader handles pongs and close frames
	ctx := c.CloseRead(r.Context())
	conn := broadcast.NewWSConn(c, h.writeWait)

	if err := h.hub.Register(ctx, conn, rid); err != nil {
		h.logger.Warn("overlay registration failed",
			zap.String("recipient_id", domain.ShortID(rid)), zap.Error(err))
		return
	}
	defer h.hub.Unregister(conn)

	<-ctx.Done()
}
