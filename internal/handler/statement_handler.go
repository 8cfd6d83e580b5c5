package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/service"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
	"github.com/noah-isme/entitlement-api/pkg/response"
)

type createStatementBody struct {
	ServiceType *string                `json:"service_type,omitempty"`
	Format      models.StatementFormat `json:"format"`
	CreatedBy   string                 `json:"created_by"`
}

// StatementHandler exposes asynchronous ledger statement exports.
type StatementHandler struct {
	statements *service.StatementService
}

// NewStatementHandler constructs handler.
func NewStatementHandler(statements *service.StatementService) *StatementHandler {
	return &StatementHandler{statements: statements}
}

// Create godoc
// @Summary Queue a ledger statement export
// @Tags Statements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param payload body createStatementBody true "Statement payload"
// @Success 202 {object} response.Envelope
// @Router /students/{studentId}/statements [post]
func (h *StatementHandler) Create(c *gin.Context) {
	var body createStatementBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	job, err := h.statements.CreateJob(c.Request.Context(), service.CreateStatementRequest{
		StudentID:   c.Param("studentId"),
		ServiceType: body.ServiceType,
		Format:      body.Format,
		CreatedBy:   operatorID(c, body.CreatedBy),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Statement job status
// @Tags Statements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /statements/{id} [get]
func (h *StatementHandler) Status(c *gin.Context) {
	job, err := h.statements.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished statement with a signed token
// @Tags Statements
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /statements/download [get]
func (h *StatementHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	download, err := h.statements.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	contentType := "text/csv"
	if download.Format == models.StatementFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Content-Type", contentType)
	c.File(download.File.Name())
}
