package middleware

import (
	"strings"

	"aucmart_go/config"
	"aucmart_go/utils"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware JWT认证中间件
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := parseToken(c)
		if !ok {
			utils.Unauthorized(c, "")
			c.Abort()
			return
		}

		// 将用户信息写入上下文
		c.Set("user_id", claims.UserID)
		c.Set("full_name", claims.FullName)
		c.Set("role", claims.Role)
		c.Set("account_type", claims.AccountType)
		c.Next()
	}
}

// OptionalAuthMiddleware 可选认证中间件
// 未携带token时以游客身份继续
func OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := parseToken(c); ok {
			c.Set("user_id", claims.UserID)
			c.Set("full_name", claims.FullName)
			c.Set("role", claims.Role)
			c.Set("account_type", claims.AccountType)
		}
		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件（需在AuthMiddleware之后）
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != "admin" {
			utils.Forbidden(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// parseToken 从Authorization头解析并验证token
func parseToken(c *gin.Context) (*config.Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, false
	}

	claims, err := config.GetJWTService().ValidateToken(tokenString)
	if err != nil {
		return nil, false
	}
	return claims, true
}
