package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clock-in-system/backend/pkg/jwt"
	"clock-in-system/backend/pkg/redis"
	"clock-in-system/backend/pkg/response"
)

// ContextKeyEmployeeID 与 handler 包约定的上下文键
const ContextKeyEmployeeID = "employee_id"

// JWTAuth JWT 认证中间件
// 从 Authorization: Bearer <token> 中提取并验证 Access Token
// rdb 非空时检查黑名单；Redis 不可用时降级放行
func JWTAuth(jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		claims, err := jwtMgr.ParseToken(token)
		if err != nil {
			response.Unauthorized(c, 10002, "Token 无效或已过期")
			c.Abort()
			return
		}

		if claims.TokenType != "access" {
			response.Unauthorized(c, 10002, "Token 类型无效")
			c.Abort()
			return
		}

		if rdb != nil && claims.ID != "" {
			revoked, err := rdb.IsBlacklisted(c.Request.Context(), claims.ID)
			if err != nil {
				logger.Warn("黑名单检查失败，降级放行", zap.String("jti", claims.ID), zap.Error(err))
			} else if revoked {
				response.Unauthorized(c, 10002, "Token 已失效")
				c.Abort()
				return
			}
		}

		c.Set(ContextKeyEmployeeID, claims.EmployeeID)

		c.Next()
	}
}

// SweepAuth 批处理接口认证：比对静态令牌
// token 为空时接口整体关闭
func SweepAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.NotFound(c, 10006, "接口未开放")
			c.Abort()
			return
		}

		got, ok := bearerToken(c)
		if !ok {
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			response.Forbidden(c, 10003, "无权限访问")
			c.Abort()
			return
		}

		c.Next()
	}
}

// bearerToken 解析 Authorization 头，失败时写入 401 并中止
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.Unauthorized(c, 10002, "缺少认证头")
		c.Abort()
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		response.Unauthorized(c, 10002, "认证头格式无效")
		c.Abort()
		return "", false
	}
	return parts[1], true
}
