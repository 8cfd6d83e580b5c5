package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/entitlement-api/internal/service"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
	"github.com/noah-isme/entitlement-api/pkg/response"
)

type inboundEvent struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// EventHandler is the ingress for upstream domain events. Handlers are
// idempotent; a non-2xx response tells the sender to redeliver.
type EventHandler struct {
	consumers *service.ConsumerService
}

// NewEventHandler constructs handler.
func NewEventHandler(consumers *service.ConsumerService) *EventHandler {
	return &EventHandler{consumers: consumers}
}

// Receive godoc
// @Summary Ingest an upstream domain event
// @Tags Events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body inboundEvent true "Event envelope"
// @Success 200 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Receive(c *gin.Context) {
	var event inboundEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if event.EventType == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "event_type required"))
		return
	}
	if err := h.consumers.HandleEvent(c.Request.Context(), event.EventType, event.Payload); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "processed"}, nil)
}
