package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRoleRouter(allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/ops", OpsAuth(testSecret), RequireRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	r := newRoleRouter("ops", "admin")

	req := httptest.NewRequest(http.MethodPost, "/ops", nil)
	req.Header.Set("Authorization", "Bearer "+signRoleToken(t, "ops"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRoleRejectsOtherRoles(t *testing.T) {
	r := newRoleRouter("admin")

	req := httptest.NewRequest(http.MethodPost, "/ops", nil)
	req.Header.Set("Authorization", "Bearer "+signRoleToken(t, "viewer"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRoleWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// RequireRole without OpsAuth in front: no claims on the context
	r.POST("/ops", RequireRole("ops"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/ops", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func signRoleToken(t *testing.T, role string) string {
	t.Helper()
	return signTokenWithRole(t, testSecret, role, time.Now().Add(time.Hour))
}
