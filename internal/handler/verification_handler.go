package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-cert-api/internal/service"
	"github.com/noah-isme/lms-cert-api/pkg/response"
)

// VerificationHandler serves the public, unauthenticated certificate
// lookup. Its response body is a bare JSON object, not the API envelope:
// the field names form an external trust contract consumed by third
// parties and must stay stable independent of internal API conventions.
type VerificationHandler struct {
	certs *service.CertificateService
}

// NewVerificationHandler constructs a VerificationHandler.
func NewVerificationHandler(certs *service.CertificateService) *VerificationHandler {
	return &VerificationHandler{certs: certs}
}

// Verify godoc
// @Summary Publicly verify a certificate by id
// @Tags Verification
// @Produce json
// @Param certificateId path string true "Certificate ID"
// @Success 200 {object} models.VerificationResult
// @Failure 404 {object} response.Envelope
// @Router /verify-certificate/{certificateId} [get]
func (h *VerificationHandler) Verify(c *gin.Context) {
	result, err := h.certs.Verify(c.Request.Context(), c.Param("certificateId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, result)
}
