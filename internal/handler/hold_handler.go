package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/entitlement-api/internal/service"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
	"github.com/noah-isme/entitlement-api/pkg/response"
)

type bindBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type cancelHoldRequest struct {
	Reason string `json:"reason"`
}

// HoldHandler exposes the hold lifecycle endpoints.
type HoldHandler struct {
	holds *service.HoldService
}

// NewHoldHandler constructs handler.
func NewHoldHandler(holds *service.HoldService) *HoldHandler {
	return &HoldHandler{holds: holds}
}

// Create godoc
// @Summary Open a soft reservation against available balance
// @Tags Holds
// @Accept json
// @Produce json
// @Param payload body service.CreateHoldRequest true "Hold payload"
// @Success 201 {object} response.Envelope
// @Router /holds [post]
func (h *HoldHandler) Create(c *gin.Context) {
	var req service.CreateHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	hold, err := h.holds.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, hold)
}

// Get godoc
// @Summary Single hold
// @Tags Holds
// @Produce json
// @Param id path string true "Hold ID"
// @Success 200 {object} response.Envelope
// @Router /holds/{id} [get]
func (h *HoldHandler) Get(c *gin.Context) {
	hold, err := h.holds.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hold, nil)
}

// BindBooking godoc
// @Summary Late-bind the downstream booking id
// @Tags Holds
// @Accept json
// @Produce json
// @Param id path string true "Hold ID"
// @Param payload body bindBookingRequest true "Booking payload"
// @Success 200 {object} response.Envelope
// @Router /holds/{id}/booking [patch]
func (h *HoldHandler) BindBooking(c *gin.Context) {
	var req bindBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	hold, err := h.holds.UpdateRelatedBooking(c.Request.Context(), c.Param("id"), req.BookingID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hold, nil)
}

// Cancel godoc
// @Summary Cancel an active hold
// @Tags Holds
// @Accept json
// @Produce json
// @Param id path string true "Hold ID"
// @Param payload body cancelHoldRequest false "Cancel payload"
// @Success 200 {object} response.Envelope
// @Router /holds/{id}/cancel [post]
func (h *HoldHandler) Cancel(c *gin.Context) {
	var req cancelHoldRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by caller"
	}
	hold, err := h.holds.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hold, nil)
}
