package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/entitlement-api/internal/service"
	"github.com/noah-isme/entitlement-api/pkg/response"
)

// OutboxHandler exposes the operational outbox endpoints. All three
// operations are idempotent and safe to call repeatedly.
type OutboxHandler struct {
	publisher *service.OutboxPublisher
}

// NewOutboxHandler constructs handler.
func NewOutboxHandler(publisher *service.OutboxPublisher) *OutboxHandler {
	return &OutboxHandler{publisher: publisher}
}

// Process godoc
// @Summary Run one outbox publish cycle now
// @Tags Outbox
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /ops/outbox/process [post]
func (h *OutboxHandler) Process(c *gin.Context) {
	published, err := h.publisher.ProcessPendingEvents(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"published": published}, nil)
}

// RetryFailed godoc
// @Summary Requeue recently failed outbox events
// @Tags Outbox
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /ops/outbox/retry-failed [post]
func (h *OutboxHandler) RetryFailed(c *gin.Context) {
	reset, err := h.publisher.RetryFailedEvents(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"requeued": reset}, nil)
}

// Cleanup godoc
// @Summary Delete published outbox events past retention
// @Tags Outbox
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /ops/outbox/cleanup [post]
func (h *OutboxHandler) Cleanup(c *gin.Context) {
	deleted, err := h.publisher.CleanupOldEvents(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": deleted}, nil)
}
