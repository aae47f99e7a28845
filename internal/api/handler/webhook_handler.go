package handler

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/alert-relay/internal/api/middleware"
	"github.com/notifyhub/alert-relay/internal/service"
)

// WebhookHandler receives signed event notifications from Kick.
type WebhookHandler struct {
	svc    *service.AlertService
	logger *zap.Logger
}

func NewWebhookHandler(svc *service.AlertService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, logger: logger}
}

// Kick handles POST /webhooks/kick
//
// The body is read verbatim: the signature covers the exact bytes sent.
//
// @Summary  Receive a Kick event
// @Tags     webhooks
// @Accept   json
// @Produce  json
// @Success  200  {object}  map[string]bool
// @Failure  400  {object}  map[string]string
// @Failure  401  {object}  map[string]string
// @Failure  500  {object}  map[string]string
// @Router   /webhooks/kick [post]
func (h *WebhookHandler) Kick(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	if err := h.svc.HandleInboundEvent(r.Context(), service.HeadersFrom(r.Header), body); err != nil {
		h.logger.Debug("webhook not accepted",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
