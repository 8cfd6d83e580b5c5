package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/service"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
	"github.com/noah-isme/entitlement-api/pkg/response"
)

// LedgerHandler exposes the ledger read and write endpoints.
type LedgerHandler struct {
	ledger *service.LedgerService
}

// NewLedgerHandler constructs handler.
func NewLedgerHandler(ledger *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// ListByStudent godoc
// @Summary Ledger history for a student
// @Tags Ledger
// @Produce json
// @Param studentId path string true "Student ID"
// @Param service_type query string false "Service type filter"
// @Param operation_type query string false "Operation type filter"
// @Param booking_id query string false "Booking filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/ledger [get]
func (h *LedgerHandler) ListByStudent(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := models.LedgerFilter{
		StudentID:     c.Param("studentId"),
		ServiceType:   c.Query("service_type"),
		OperationType: c.Query("operation_type"),
		BookingID:     c.Query("booking_id"),
		Page:          page,
		PageSize:      pageSize,
	}

	entries, total, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Single ledger entry
// @Tags Ledger
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /ledger/{id} [get]
func (h *LedgerHandler) Get(c *gin.Context) {
	entry, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// RecordConsumption godoc
// @Summary Record a consumption
// @Tags Ledger
// @Accept json
// @Produce json
// @Param payload body service.ConsumptionRequest true "Consumption payload"
// @Success 201 {object} response.Envelope
// @Router /ledger/consumptions [post]
func (h *LedgerHandler) RecordConsumption(c *gin.Context) {
	var req service.ConsumptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	entry, err := h.ledger.RecordConsumption(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// RecordRefund godoc
// @Summary Record a refund for a booking
// @Tags Ledger
// @Accept json
// @Produce json
// @Param payload body service.RefundRequest true "Refund payload"
// @Success 201 {object} response.Envelope
// @Router /ledger/refunds [post]
func (h *LedgerHandler) RecordRefund(c *gin.Context) {
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	entry, err := h.ledger.RecordRefund(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// RecordAdjustment godoc
// @Summary Record a manual adjustment
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.AdjustmentRequest true "Adjustment payload"
// @Success 201 {object} response.Envelope
// @Router /ledger/adjustments [post]
func (h *LedgerHandler) RecordAdjustment(c *gin.Context) {
	var req service.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	req.CreatedBy = operatorID(c, req.CreatedBy)
	entry, err := h.ledger.RecordAdjustment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}
