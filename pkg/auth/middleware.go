package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	ContextKeyClaims   contextKey = "claims"
	ContextKeyTenantID contextKey = "tenant_id"
	ContextKeyUserID   contextKey = "user_id"
)

// Middleware provides authentication middleware
type Middleware struct {
	jwtManager *JWTManager
	policy     *Policy
	logger     *zap.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(jwtManager *JWTManager, policy *Policy, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		jwtManager: jwtManager,
		policy:     policy,
		logger:     logger,
	}
}

// Authenticate returns a Gin middleware for JWT authentication
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization token",
			})
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			m.logger.Debug("token validation failed",
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}

		if claims.TenantID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "tenant context required",
			})
			return
		}

		c.Set(string(ContextKeyClaims), claims)
		c.Set(string(ContextKeyTenantID), claims.TenantID)
		c.Set(string(ContextKeyUserID), claims.User().ID)

		c.Next()
	}
}

// RequirePermission returns middleware that checks the policy for object and action
func (m *Middleware) RequirePermission(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaimsFromGin(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		if !m.policy.Allowed(claims.User(), object, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient permissions",
			})
			return
		}

		c.Next()
	}
}

// Policy returns the policy used by the middleware
func (m *Middleware) Policy() *Policy {
	return m.policy
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}
	return ""
}

// GetClaimsFromGin extracts claims from Gin context
func GetClaimsFromGin(c *gin.Context) *Claims {
	if claims, exists := c.Get(string(ContextKeyClaims)); exists {
		if cl, ok := claims.(*Claims); ok {
			return cl
		}
	}
	return nil
}

// GetTenantIDFromGin extracts tenant ID from Gin context
func GetTenantIDFromGin(c *gin.Context) string {
	return c.GetString(string(ContextKeyTenantID))
}

// UserFromGin returns the authenticated user of the request
func UserFromGin(c *gin.Context) User {
	if claims := GetClaimsFromGin(c); claims != nil {
		return claims.User()
	}
	return User{}
}
