package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/alert-relay/internal/api/middleware"
	"github.com/notifyhub/alert-relay/internal/domain"
	"github.com/notifyhub/alert-relay/internal/service"
)

// AlertHandler lets creators push synthetic alerts while setting up an overlay.
type AlertHandler struct {
	svc    *service.AlertService
	logger *zap.Logger
}

func NewAlertHandler(svc *service.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{svc: svc, logger: logger}
}

// SendTest handles POST /api/v1/recipients/{recipientId}/alerts/test
//
// @Summary  Queue a test alert for an overlay
// @Tags     alerts
// @Accept   json
// @Produce  json
// @Param    recipientId  path      string                   true  "Recipient hash"
// @Param    body         body      domain.TestAlertRequest  true  "Alert to preview"
// @Success  202          {object}  domain.Alert
// @Failure  422          {object}  map[string]string
// @Router   /api/v1/recipients/{recipientId}/alerts/test [post]
func (h *AlertHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	var req domain.TestAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := h.svc.SubmitTest(r.Context(), chi.URLParam(r, "recipientId"), req)
	if err != nil {
		h.logger.Warn("test alert failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, a)
}
