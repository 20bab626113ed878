package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"clock-in-system/backend/config"
	"clock-in-system/backend/internal/api/handler"
	"clock-in-system/backend/internal/api/router"
	"clock-in-system/backend/internal/repository"
	"clock-in-system/backend/internal/service"
	"clock-in-system/backend/pkg/database"
	"clock-in-system/backend/pkg/jwt"
	applogger "clock-in-system/backend/pkg/logger"
	"clock-in-system/backend/pkg/redis"
)

func main() {
	// 0. 本地开发时从 .env 注入环境变量，文件不存在时忽略
	_ = godotenv.Load()

	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("CLOCK_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log, "server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("timezone", cfg.Clocking.Timezone),
	)

	rules, err := service.NewRules(&cfg.Clocking)
	if err != nil {
		logger.Fatal("打卡规则无效", zap.Error(err))
	}

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Clocking.Timezone, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：未配置或连接失败时降级运行）
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，黑名单与限流将不可用，节假日改用内存缓存", zap.Error(err))
			rdb = nil
		}
	}

	// 5. 初始化 JWT 管理器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	holidays := newHolidayCalendar(cfg, rules, rdb, logger)
	svc := service.NewService(rules, repo, holidays, service.NewInboxNotifier(repo, logger), logger)
	h := handler.NewHandler(svc, rules.Location)

	// 7. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, logger)

	// 8. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 批处理接口可能较慢
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	sqlDB.Close()

	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// newHolidayCalendar 组装节假日日历：ICS 源 + Redis/内存缓存
func newHolidayCalendar(cfg *config.Config, rules *service.Rules, rdb *redis.Client, logger *zap.Logger) service.HolidayCalendar {
	if cfg.Holiday.ICSSource == "" {
		logger.Info("未配置节假日日历，所有日期按工作日处理")
		return service.NewNoHolidayCalendar()
	}

	inner := service.NewICSHolidayCalendar(cfg.Holiday.ICSSource, rules.Location, cfg.Holiday.CacheTTL, logger)
	var cache service.HolidayCache = service.NewMemoryHolidayCache()
	if rdb != nil {
		cache = rdb
	}
	return service.NewCachedHolidayCalendar(inner, cache, cfg.Holiday.CacheTTL, rules.Location, logger)
}
