package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	"github.com/modulearn/modulearn-api/internal/service"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/response"
)

// ModuleHandler exposes module CRUD endpoints.
type ModuleHandler struct {
	modules  *service.ModuleService
	sections *service.SectionService
}

// NewModuleHandler constructs handler.
func NewModuleHandler(modules *service.ModuleService, sections *service.SectionService) *ModuleHandler {
	return &ModuleHandler{modules: modules, sections: sections}
}

// List godoc
// @Summary List modules
// @Tags Modules
// @Produce json
// @Param status query string false "Filter by status"
// @Param search query string false "Title search"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /modules [get]
func (h *ModuleHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ModuleFilter{
		OrgID:  claims.OrgID,
		Search: c.Query("search"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ModuleStatus(raw)
		filter.Status = &status
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	modules, pagination, err := h.modules.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, modules, pagination)
}

// Get godoc
// @Summary Module detail
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /modules/{id} [get]
func (h *ModuleHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.modules.Get(c.Request.Context(), claims.OrgID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Update module
// @Tags Modules
// @Accept json
// @Produce json
// @Param id path string true "Module ID"
// @Param payload body dto.UpdateModuleRequest true "Fields to update"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /modules/{id} [patch]
func (h *ModuleHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.UpdateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid module payload"))
		return
	}

	detail, err := h.modules.Update(c.Request.Context(), claims.OrgID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Delete module
// @Description Remove a module unless learners still have open assignments
// @Tags Modules
// @Produce json
// @Param id path string true "Module ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /modules/{id} [delete]
func (h *ModuleHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.modules.Delete(c.Request.Context(), claims.OrgID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
