package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-cert-api/internal/service"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
	"github.com/noah-isme/lms-cert-api/pkg/response"
)

// CertificateHandler exposes approval, issuance and registry endpoints.
type CertificateHandler struct {
	approvals *service.ApprovalService
	certs     *service.CertificateService
	registry  *service.RegistryService
}

// NewCertificateHandler constructs a CertificateHandler.
func NewCertificateHandler(approvals *service.ApprovalService, certs *service.CertificateService, registry *service.RegistryService) *CertificateHandler {
	return &CertificateHandler{approvals: approvals, certs: certs, registry: registry}
}

// Approve godoc
// @Summary Enable certificate issuance for an enrollment
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body service.ApproveRequest true "Approval"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/approve [post]
func (h *CertificateHandler) Approve(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return
	}
	req.ApprovedBy = claims.UserID

	approval, err := h.approvals.Approve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Revoke godoc
// @Summary Revoke a certificate approval
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body service.RevokeRequest true "Revocation"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/revoke [post]
func (h *CertificateHandler) Revoke(c *gin.Context) {
	var req service.RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid revoke payload"))
		return
	}

	approval, err := h.approvals.Revoke(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Status godoc
// @Summary Certificate eligibility and issuance state for an enrollment
// @Tags Certificates
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/students/{studentId}/certificate [get]
func (h *CertificateHandler) Status(c *gin.Context) {
	approval, err := h.approvals.GetApproval(c.Request.Context(), c.Param("courseId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Download godoc
// @Summary Issue (if needed) and download the certificate PDF
// @Tags Certificates
// @Produce application/pdf
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /courses/{courseId}/students/{studentId}/certificate/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	filename, document, err := h.certs.Download(c.Request.Context(), c.Param("courseId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", document)
}

// MyCertificates godoc
// @Summary Certificates of the authenticated student
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/certificates [get]
func (h *CertificateHandler) MyCertificates(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok || claims.StudentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "no student profile linked to account"))
		return
	}

	approvals, err := h.approvals.ListByStudent(c.Request.Context(), claims.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}

// ExportRegistry godoc
// @Summary Export the certificate registry of a course as CSV
// @Tags Certificates
// @Produce text/csv
// @Param courseId path string true "Course ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/certificates/export [get]
func (h *CertificateHandler) ExportRegistry(c *gin.Context) {
	filename, data, err := h.registry.ExportCourseRegistry(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv", data)
}
