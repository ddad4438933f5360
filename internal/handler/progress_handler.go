package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/service"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/response"
)

// ProgressHandler exposes learner progress endpoints.
type ProgressHandler struct {
	progress *service.ProgressService
}

// NewProgressHandler constructs handler.
func NewProgressHandler(progress *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// Update godoc
// @Summary Record section progress
// @Description Upsert reading state for one section and return the module summary
// @Tags Progress
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param sectionId path string true "Section ID"
// @Param payload body dto.UpdateProgressRequest true "Progress payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /modules/{id}/sections/{sectionId}/progress [put]
func (h *ProgressHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid progress payload"))
		return
	}

	summary, err := h.progress.Update(c.Request.Context(), claims, c.Param("id"), c.Param("sectionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Summary godoc
// @Summary Module progress summary
// @Tags Progress
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /modules/{id}/progress [get]
func (h *ProgressHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.progress.Summary(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Detail godoc
// @Summary Per-section progress rows
// @Tags Progress
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /modules/{id}/progress/detail [get]
func (h *ProgressHandler) Detail(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rows, err := h.progress.Detail(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
