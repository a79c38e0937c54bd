package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader 是携带管理密钥的请求头。
const AdminKeyHeader = "X-Admin-Key"

// AdminAuthMiddleware 使用 bcrypt 校验 X-Admin-Key。未配置 keyHash 时管理接口整体关闭。
func AdminAuthMiddleware(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keyHash == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "admin endpoints are disabled", "data": nil})
			return
		}
		key := c.GetHeader(AdminKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing admin key", "data": nil})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "invalid admin key", "data": nil})
			return
		}
		c.Next()
	}
}
