package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/entitlement-api/internal/service"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
	"github.com/noah-isme/entitlement-api/pkg/response"
)

// GrantHandler exposes entitlement grant endpoints.
type GrantHandler struct {
	grants *service.GrantService
}

// NewGrantHandler constructs handler.
func NewGrantHandler(grants *service.GrantService) *GrantHandler {
	return &GrantHandler{grants: grants}
}

// Create godoc
// @Summary Record a new entitlement grant
// @Tags Grants
// @Accept json
// @Produce json
// @Param payload body service.CreateGrantRequest true "Grant payload"
// @Success 201 {object} response.Envelope
// @Router /grants [post]
func (h *GrantHandler) Create(c *gin.Context) {
	var req service.CreateGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	grant, err := h.grants.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grant)
}

// ListByStudent godoc
// @Summary List a student's grants in attribution order
// @Tags Grants
// @Produce json
// @Param studentId path string true "Student ID"
// @Param service_type query string false "Service type filter"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/grants [get]
func (h *GrantHandler) ListByStudent(c *gin.Context) {
	grants, err := h.grants.ListByStudent(c.Request.Context(), c.Param("studentId"), c.Query("service_type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grants, nil)
}
