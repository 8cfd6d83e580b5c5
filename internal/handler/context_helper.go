package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/entitlement-api/internal/middleware"
	"github.com/noah-isme/entitlement-api/internal/models"
)

// operatorFromContext returns the ops claims stored by OpsAuth, or nil
// on unauthenticated routes.
func operatorFromContext(c *gin.Context) *models.OpsClaims {
	value, exists := c.Get(middleware.ContextOpsKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.OpsClaims)
	if !ok {
		return nil
	}
	return claims
}

// operatorID resolves the acting operator for audit fields, falling
// back to the payload-provided actor when the route is unauthenticated.
func operatorID(c *gin.Context, fallback string) string {
	if claims := operatorFromContext(c); claims != nil && claims.Subject != "" {
		return claims.Subject
	}
	return fallback
}
