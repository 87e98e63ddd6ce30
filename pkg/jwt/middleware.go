package jwt

import (
	"strings"

	"im-server/pkg/imerr"
	"im-server/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	// ContextUserIDKey 用户ID在gin.Context中的键名
	ContextUserIDKey = "user_id"
	// ContextUsernameKey 用户名在gin.Context中的键名
	ContextUsernameKey = "username"
	// ContextRoleKey 角色在gin.Context中的键名
	ContextRoleKey = "role"
	// ContextClaimsKey JWT声明在gin.Context中的键名
	ContextClaimsKey = "jwt_claims"
)

// AuthMiddleware JWT认证中间件
// 从请求头中提取Authorization: Bearer <token>
// 验证token并将用户信息存入gin.Context
func (s *JWTService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从请求头获取Authorization
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Fail(c, imerr.New(imerr.CodeAuthRequired, "缺少Authorization请求头"))
			c.Abort()
			return
		}

		// 检查Bearer前缀
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Fail(c, imerr.New(imerr.CodeAuthRequired, "Authorization格式错误，应为Bearer <token>"))
			c.Abort()
			return
		}

		// 提取并验证token
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			response.Fail(c, imerr.Wrap(imerr.CodeUserTokenInvalid, "token无效或已过期", err))
			c.Abort()
			return
		}

		// 将用户信息存入Context
		c.Set(ContextUserIDKey, claims.UserID())
		c.Set(ContextUsernameKey, claims.Username())
		c.Set(ContextRoleKey, claims.Role())
		c.Set(ContextClaimsKey, claims)

		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件，须在AuthMiddleware之后使用
func (s *JWTService) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != "admin" {
			response.Fail(c, imerr.PermissionDenied("需要管理员权限"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID 从gin.Context中获取用户ID
func GetUserID(c *gin.Context) uint64 {
	if userID, exists := c.Get(ContextUserIDKey); exists {
		if id, ok := userID.(uint64); ok {
			return id
		}
	}
	return 0
}

// GetUsername 从gin.Context中获取用户名
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(ContextUsernameKey); exists {
		if name, ok := username.(string); ok {
			return name
		}
	}
	return ""
}

// GetRole 从gin.Context中获取角色
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRoleKey); exists {
		if r, ok := role.(string); ok {
			return r
		}
	}
	return ""
}
