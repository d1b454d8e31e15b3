package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	jwtutil "shopchat/internal/utils"
	"shopchat/pkg/log"
	"shopchat/pkg/utils"
)

const (
	// AuthorizationHeader carries the bearer token
	AuthorizationHeader = "Authorization"
	// BearerPrefix prefix of the Authorization header value
	BearerPrefix = "Bearer "
	// UserIDKey the tenant id in the gin context
	UserIDKey = "user_id"
	// UserRoleKey the caller role in the gin context
	UserRoleKey = "user_role"
)

// AuthConfig configures bearer authentication
type AuthConfig struct {
	// TokenValidator resolves a bearer token to its caller
	TokenValidator func(token string) (*UserInfo, error)
	// SkipPaths are served without a token
	SkipPaths []string
	// RequiredRole rejects callers with any other role when set
	RequiredRole string
}

// UserInfo is the authenticated tenant
type UserInfo struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

// JWTValidator adapts a token verifier to the middleware
func JWTValidator(v *jwtutil.TokenVerifier) func(token string) (*UserInfo, error) {
	return func(token string) (*UserInfo, error) {
		claims, err := v.Verify(token)
		if err != nil {
			return nil, err
		}
		id, err := claims.TenantID()
		if err != nil {
			return nil, err
		}
		return &UserInfo{ID: id, Role: claims.Role}, nil
	}
}

// Auth requires a valid bearer token
func Auth(validator func(token string) (*UserInfo, error)) gin.HandlerFunc {
	return AuthWithConfig(AuthConfig{
		TokenValidator: validator,
	})
}

// AuthWithConfig authenticates with the given config
func AuthWithConfig(config AuthConfig) gin.HandlerFunc {
	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			utils.Error(c, utils.CodeUnauthorized, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			utils.Error(c, utils.CodeUnauthorized, "Invalid authorization header format")
			return
		}
		token := strings.TrimPrefix(authHeader, BearerPrefix)
		if token == "" {
			utils.Error(c, utils.CodeUnauthorized, "Missing token")
			return
		}

		userInfo, err := config.TokenValidator(token)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"path":  c.Request.URL.Path,
				"ip":    c.ClientIP(),
				"error": err.Error(),
			}).Warn("Rejected bearer token")
			utils.Error(c, utils.CodeUnauthorized, "Invalid token")
			return
		}

		if config.RequiredRole != "" && userInfo.Role != config.RequiredRole {
			utils.Error(c, utils.CodeForbidden, "Insufficient permissions")
			return
		}

		c.Set(UserIDKey, userInfo.ID)
		c.Set(UserRoleKey, userInfo.Role)
		c.Next()
	}
}

// GetUserID returns the authenticated tenant id from the context
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}
