package handler

import (
	"github.com/gin-gonic/gin"

	"clock-in-system/backend/internal/api/middleware"
	"clock-in-system/backend/pkg/response"
)

// ContextKeyEmployeeID JWT 中间件注入的员工 ID
const ContextKeyEmployeeID = middleware.ContextKeyEmployeeID

// MustGetEmployeeID 从 Gin 上下文中安全提取 employee_id。
// 如果 JWT 中间件未正确注入，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetEmployeeID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyEmployeeID)
	if !exists {
		response.Unauthorized(c, codeUnauthenticated, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, codeUnauthenticated, "未认证")
		return "", false
	}
	return s, true
}
