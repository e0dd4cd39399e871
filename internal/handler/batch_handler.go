package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-cert-api/internal/service"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
	"github.com/noah-isme/lms-cert-api/pkg/response"
)

// BatchHandler exposes bulk issuance endpoints.
type BatchHandler struct {
	service *service.BatchService
}

// NewBatchHandler constructs a BatchHandler.
func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{service: svc}
}

// Start godoc
// @Summary Queue a bulk certificate render for a course
// @Tags Batches
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 202 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /courses/{courseId}/certificates/batches [post]
func (h *BatchHandler) Start(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch processing not enabled"))
		return
	}
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	batch, err := h.service.StartBatch(c.Request.Context(), c.Param("courseId"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, batch, nil)
}

// Get godoc
// @Summary Poll a batch's progress
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch processing not enabled"))
		return
	}
	batch, err := h.service.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Download godoc
// @Summary Download a finished batch archive via signed token
// @Tags Batches
// @Produce application/zip
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /certificates/batches/download [get]
func (h *BatchHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch processing not enabled"))
		return
	}
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}

	file, filename, err := h.service.OpenResult(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat archive"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/zip", file, nil)
}
