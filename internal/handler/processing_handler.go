package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modulearn/modulearn-api/internal/service"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/response"
)

// ProcessingHandler exposes conversion status and retry endpoints.
type ProcessingHandler struct {
	processing *service.ProcessingService
}

// NewProcessingHandler constructs handler.
func NewProcessingHandler(processing *service.ProcessingService) *ProcessingHandler {
	return &ProcessingHandler{processing: processing}
}

// Status godoc
// @Summary Conversion status
// @Description Poll the processing state of an uploaded module
// @Tags Processing
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /modules/{id}/status [get]
func (h *ProcessingHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	status, err := h.processing.GetStatus(c.Request.Context(), claims.OrgID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Retry godoc
// @Summary Retry failed conversion
// @Tags Processing
// @Produce json
// @Param id path string true "Module ID"
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /modules/{id}/retry [post]
func (h *ProcessingHandler) Retry(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.processing.Retry(c.Request.Context(), claims.OrgID, c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "queued"}, nil)
}
