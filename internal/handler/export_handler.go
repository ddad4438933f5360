package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modulearn/modulearn-api/internal/service"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/response"
)

// ExportHandler exposes report generation and signed downloads.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Generate godoc
// @Summary Generate progress report
// @Description Render the module's learner roster as CSV or PDF behind a signed URL
// @Tags Exports
// @Produce json
// @Param id path string true "Module ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /modules/{id}/export [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.GenerateModuleReport(c.Request.Context(), claims.OrgID, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download export
// @Description Stream a previously generated report; the token authenticates the request
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	c.Header("Content-Disposition", "attachment; filename=\""+download.Filename+"\"")
	c.Header("Cache-Control", "no-store")
	http.ServeContent(c.Writer, c.Request, download.Filename, time.Time{}, download.File)
}
