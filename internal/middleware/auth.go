// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"slr-assistant-go/pkg/token"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionIDKey 是会话 ID 在 Gin 上下文中的键。
const SessionIDKey = "sessionId"

// SessionAuth 创建一个 Gin 中间件，校验 Bearer 会话令牌，并将会话 ID 存入上下文。
func SessionAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing authorization header", "data": nil})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid authorization header", "data": nil})
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid or expired session token", "data": nil})
			return
		}

		c.Set(SessionIDKey, claims.SessionID)
		c.Set("claims", claims)
		c.Next()
	}
}
