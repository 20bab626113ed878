package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clock-in-system/backend/config"
	"clock-in-system/backend/internal/api/handler"
	"clock-in-system/backend/internal/api/middleware"
	"clock-in-system/backend/pkg/jwt"
	"clock-in-system/backend/pkg/redis"
)

const (
	maxBodyBytes    = 1 << 20
	clockRateLimit  = 10
	clockRateWindow = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1（均需认证，角色由 Service 层按门店判定）──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, rdb, logger))
	{
		// 打卡模块
		clock := v1.Group("/clock")
		clock.Use(middleware.RateLimit(rdb, clockRateLimit, clockRateWindow, logger))
		{
			clock.POST("/in", h.Clock.ClockIn)
			clock.POST("/out", h.Clock.ClockOut)
			clock.GET("/status", h.Clock.Status)
		}

		// 出勤记录（经理）
		activities := v1.Group("/activities")
		{
			activities.PUT("/:id", h.Clock.EditActivity)
			activities.DELETE("/:id", h.Clock.DeleteActivity)
		}

		// 排班模块
		shifts := v1.Group("/shifts")
		{
			shifts.GET("", h.Shift.ListWeek)
			shifts.POST("", h.Shift.Create)
			shifts.POST("/copy-week", h.Shift.CopyWeek)
			shifts.GET("/:id", h.Shift.Get)
			shifts.PUT("/:id", h.Shift.Update)
			shifts.DELETE("/:id", h.Shift.Delete)
		}

		// 异常审核
		exceptions := v1.Group("/exceptions")
		{
			exceptions.GET("", h.Exception.ListPending)
			exceptions.POST("/:id/approve", h.Exception.Approve)
			exceptions.POST("/:id/correct", h.Exception.ApproveWithCorrection)
		}

		// 代班/换班
		requests := v1.Group("/shift-requests")
		{
			requests.GET("", h.ShiftRequest.List)
			requests.POST("", h.ShiftRequest.Create)
			requests.GET("/:id", h.ShiftRequest.Get)
			requests.POST("/:id/accept", h.ShiftRequest.Accept)
			requests.POST("/:id/approve", h.ShiftRequest.Approve)
			requests.POST("/:id/reject", h.ShiftRequest.Reject)
			requests.POST("/:id/cancel", h.ShiftRequest.Cancel)
		}

		// 循环排班
		repeating := v1.Group("/repeating-shifts")
		{
			repeating.GET("", h.RepeatingShift.List)
			repeating.POST("", h.RepeatingShift.Create)
			repeating.POST("/generate", h.RepeatingShift.Generate)
			repeating.DELETE("/:id", h.RepeatingShift.Delete)
		}

		// 站内通知
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.Notification.List)
			notifications.PUT("/:id/read", h.Notification.MarkRead)
		}
	}

	// ── 批处理接口（外部调度器调用）──
	sweeps := r.Group("/internal/sweeps")
	sweeps.Use(middleware.SweepAuth(cfg.Auth.SweepToken))
	{
		sweeps.POST("/force-clockout", h.Sweep.ForceClockOut)
		sweeps.POST("/reconcile", h.Sweep.Reconcile)
		sweeps.POST("/reconcile-store", h.Sweep.ReconcileStore)
		sweeps.POST("/materialize", h.Sweep.Materialize)
		sweeps.POST("/expire-requests", h.Sweep.ExpireRequests)
	}

	return r
}
