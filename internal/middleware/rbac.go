package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/entitlement-api/internal/models"
	appErrors "github.com/noah-isme/entitlement-api/pkg/errors"
	"github.com/noah-isme/entitlement-api/pkg/response"
)

// RequireRole restricts a route to tokens carrying one of the allowed
// roles. Must run after OpsAuth, which stores the parsed claims.
func RequireRole(allowed ...string) gin.HandlerFunc {
	allowedRoles := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowedRoles[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextOpsKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.OpsClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
