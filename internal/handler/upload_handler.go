package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/service"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/response"
)

// UploadHandler exposes the two-phase upload endpoints.
type UploadHandler struct {
	service *service.UploadService
}

// NewUploadHandler constructs handler.
func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// Create godoc
// @Summary Reserve upload slot
// @Description Validate file metadata and issue a signed upload URL
// @Tags Uploads
// @Accept json
// @Produce json
// @Param payload body dto.CreateUploadRequest true "Upload metadata"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload payload"))
		return
	}

	res, err := h.service.CreateUpload(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Receive godoc
// @Summary Receive file bytes
// @Description Stream the PDF body against a previously issued upload token
// @Tags Uploads
// @Accept octet-stream
// @Produce json
// @Param token path string true "Upload token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /uploads/{token} [put]
func (h *UploadHandler) Receive(c *gin.Context) {
	key, err := h.service.ReceiveUpload(c.Request.Context(), c.Param("token"), c.Request.Body, c.Request.ContentLength)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"file_key": key}, nil)
}

// Complete godoc
// @Summary Complete upload
// @Description Confirm the stored file and create the pending module
// @Tags Uploads
// @Accept json
// @Produce json
// @Param payload body dto.CompleteUploadRequest true "Completion payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /uploads/complete [post]
func (h *UploadHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid completion payload"))
		return
	}

	module, err := h.service.CompleteUpload(c.Request.Context(), claims, req, req.FileName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, module)
}
