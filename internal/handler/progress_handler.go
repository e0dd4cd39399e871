package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-cert-api/internal/service"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
	"github.com/noah-isme/lms-cert-api/pkg/response"
)

// ProgressHandler exposes watch-progress endpoints.
type ProgressHandler struct {
	service *service.ProgressService
}

// NewProgressHandler constructs a ProgressHandler.
func NewProgressHandler(svc *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{service: svc}
}

func (h *ProgressHandler) request(c *gin.Context) service.ProgressRequest {
	return service.ProgressRequest{
		StudentID: c.Param("studentId"),
		CourseID:  c.Param("courseId"),
		LectureID: c.Param("lectureId"),
	}
}

// Get godoc
// @Summary Progress record for an enrollment
// @Tags Progress
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/students/{studentId}/progress [get]
func (h *ProgressHandler) Get(c *gin.Context) {
	record, err := h.service.GetProgress(c.Request.Context(), c.Param("studentId"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// MarkViewed godoc
// @Summary Mark a lecture as watched
// @Tags Progress
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Param lectureId path string true "Lecture ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/students/{studentId}/lectures/{lectureId}/viewed [post]
func (h *ProgressHandler) MarkViewed(c *gin.Context) {
	record, err := h.service.RecordLectureViewed(c.Request.Context(), h.request(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// RecordPlayback godoc
// @Summary Record playback percentage for a lecture
// @Tags Progress
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Param lectureId path string true "Lecture ID"
// @Param payload body object true "Percentage"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{courseId}/students/{studentId}/lectures/{lectureId}/progress [post]
func (h *ProgressHandler) RecordPlayback(c *gin.Context) {
	var payload struct {
		Percentage *int `json:"percentage" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "percentage required"))
		return
	}

	record, err := h.service.RecordPlaybackProgress(c.Request.Context(), h.request(c), *payload.Percentage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Reset godoc
// @Summary Reset all progress for an enrollment
// @Tags Progress
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/students/{studentId}/progress [delete]
func (h *ProgressHandler) Reset(c *gin.Context) {
	record, err := h.service.ResetProgress(c.Request.Context(), c.Param("studentId"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
