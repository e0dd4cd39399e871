package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-cert-api/internal/middleware"
	"github.com/noah-isme/lms-cert-api/internal/models"
)

// currentClaims extracts JWT claims attached by the auth middleware.
func currentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
