package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/entitlement-api/internal/service"
	"github.com/noah-isme/entitlement-api/pkg/response"
)

// BalanceHandler exposes derived balance endpoints.
type BalanceHandler struct {
	balances *service.BalanceService
}

// NewBalanceHandler constructs handler.
func NewBalanceHandler(balances *service.BalanceService) *BalanceHandler {
	return &BalanceHandler{balances: balances}
}

// GetBalance godoc
// @Summary Current balance for a student
// @Tags Balances
// @Produce json
// @Param studentId path string true "Student ID"
// @Param service_type query string false "Service type; omit for all"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/balance [get]
func (h *BalanceHandler) GetBalance(c *gin.Context) {
	studentID := c.Param("studentId")
	serviceType := c.Query("service_type")

	if serviceType != "" {
		balance, err := h.balances.GetBalance(c.Request.Context(), studentID, serviceType)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, balance, nil)
		return
	}

	balances, err := h.balances.ListBalances(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balances, nil)
}
