package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"suruchiraj-service/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func authorizeRouter(m *Mid, claims *auth.Claims, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if claims != nil {
		r.Use(func(c *gin.Context) {
			ctx := context.WithValue(c.Request.Context(), auth.ClaimsKey, *claims)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
	r.GET("/protected", m.Authorize(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}, roles...))
	return r
}

func TestAuthorize(t *testing.T) {
	m := &Mid{}

	tests := []struct {
		name     string
		claims   *auth.Claims
		roles    []string
		wantCode int
	}{
		{
			name:     "holder of the single role passes",
			claims:   &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}, Roles: []string{auth.RoleUser}},
			roles:    []string{auth.RoleUser},
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong role is rejected",
			claims:   &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}, Roles: []string{auth.RoleUser}},
			roles:    []string{auth.RoleAdmin},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "any of several roles suffices",
			claims:   &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "a1"}, Roles: []string{auth.RoleAdmin}},
			roles:    []string{auth.RoleUser, auth.RoleAdmin},
			wantCode: http.StatusOK,
		},
		{
			name:     "no roles on the token",
			claims:   &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}},
			roles:    []string{auth.RoleUser, auth.RoleAdmin},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "no claims in context",
			claims:   nil,
			roles:    []string{auth.RoleUser},
			wantCode: http.StatusForbidden,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := authorizeRouter(m, tc.claims, tc.roles...)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
			assert.Equal(t, tc.wantCode, w.Code)
		})
	}
}
