package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-cert-api/internal/service"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
	"github.com/noah-isme/lms-cert-api/pkg/response"
)

// CourseHandler exposes the catalog configuration owned by this engine.
type CourseHandler struct {
	service *service.CourseService
}

// NewCourseHandler constructs a CourseHandler.
func NewCourseHandler(svc *service.CourseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// Get godoc
// @Summary Course with its curriculum
// @Tags Courses
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, lectures, err := h.service.GetCourse(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"course": course, "lectures": lectures}, nil)
}

// UpdateThreshold godoc
// @Summary Update a course's completion threshold
// @Tags Courses
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body object true "Threshold"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{courseId}/threshold [patch]
func (h *CourseHandler) UpdateThreshold(c *gin.Context) {
	var payload struct {
		Threshold *int `json:"threshold" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "threshold required"))
		return
	}

	course, err := h.service.SetCompletionThreshold(c.Request.Context(), c.Param("courseId"), *payload.Threshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}
