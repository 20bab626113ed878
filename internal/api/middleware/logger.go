package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger 请求日志中间件（基于 Zap 结构化日志）
// route 记录路由模板而非实际路径，便于按接口聚合；健康检查仅在 debug 级别输出
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		route := c.FullPath()
		fields := []zap.Field{
			zap.Int("status", statusCode),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if emp := c.GetString(ContextKeyEmployeeID); emp != "" {
			fields = append(fields, zap.String("employee_id", emp))
		}
		if storeID := c.Query("store_id"); storeID != "" {
			fields = append(fields, zap.String("store_id", storeID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()))
		}

		switch {
		case route == "/health":
			logger.Debug("健康检查", fields...)
		case statusCode >= 500:
			logger.Error("请求处理失败", fields...)
		case statusCode >= 400:
			logger.Warn("客户端错误", fields...)
		case statusCode == http.StatusMultiStatus:
			logger.Warn("批处理部分失败", fields...)
		default:
			logger.Info("请求完成", fields...)
		}
	}
}
