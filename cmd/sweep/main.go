// Command sweep 由 cron 等外部调度器调用的批处理入口
//
// 用法:
//
//	sweep force-clockout              强制签退所有仍在岗的员工（每日午夜）
//	sweep reconcile [-date D]         核对所有门店某日，缺省为昨天
//	sweep materialize [-week D]       按模板生成某周排班，缺省为下周
//	sweep expire-requests             过期未决的代班/换班申请
//
// 结果以 JSON 输出到标准输出；存在失败单元时退出码为 2
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"clock-in-system/backend/config"
	"clock-in-system/backend/internal/repository"
	"clock-in-system/backend/internal/service"
	"clock-in-system/backend/pkg/database"
	applogger "clock-in-system/backend/pkg/logger"
	"clock-in-system/backend/pkg/timeutil"
)

func main() {
	os.Exit(run())
}

// run 执行任务并返回退出码；所有清理都在 defer 中完成，os.Exit 只在 main 中调用
func run() int {
	if len(os.Args) < 2 {
		printUsage()
		return 1
	}
	job := os.Args[1]

	fs := flag.NewFlagSet(job, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("CLOCK_CONFIG"), "配置文件路径")
	date := fs.String("date", "", "核对日期 YYYY-MM-DD（reconcile）")
	week := fs.String("week", "", "目标周任意一天 YYYY-MM-DD（materialize）")
	timeout := fs.Duration("timeout", 30*time.Minute, "整体超时")
	_ = fs.Parse(os.Args[2:])

	switch job {
	case service.JobForceClockOut, service.JobReconcile, service.JobMaterialize, service.JobExpireRequests:
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "未知任务: %s\n\n", job)
		printUsage()
		return 1
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}
	logger, err := applogger.NewLogger(&cfg.Log, "sweep")
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer logger.Sync()

	rules, err := service.NewRules(&cfg.Clocking)
	if err != nil {
		logger.Error("打卡规则无效", zap.Error(err))
		return 1
	}

	db, err := database.NewDB(&cfg.Database, cfg.Clocking.Timezone, cfg.Log.Level, logger)
	if err != nil {
		logger.Error("数据库连接失败", zap.Error(err))
		return 1
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("获取底层 sql.DB 失败", zap.Error(err))
		return 1
	}
	defer sqlDB.Close()

	// 批处理不需要节假日判定：强制签退沿用签到时记录的标记
	repo := repository.NewRepository(db)
	svc := service.NewService(rules, repo, service.NewNoHolidayCalendar(), service.NewInboxNotifier(repo, logger), logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	now := time.Now()
	var day, target time.Time
	if job == service.JobReconcile {
		day = timeutil.DateOf(now, rules.Location).AddDate(0, 0, -1)
		if *date != "" {
			if day, err = time.ParseInLocation("2006-01-02", *date, rules.Location); err != nil {
				fmt.Fprintf(os.Stderr, "日期格式无效: %s\n", *date)
				return 1
			}
		}
	}
	if job == service.JobMaterialize {
		target = timeutil.WeekStart(now, rules.Location).AddDate(0, 0, 7)
		if *week != "" {
			w, err := time.ParseInLocation("2006-01-02", *week, rules.Location)
			if err != nil {
				fmt.Fprintf(os.Stderr, "日期格式无效: %s\n", *week)
				return 1
			}
			target = timeutil.WeekStart(w, rules.Location)
		}
	}

	var report *service.SweepReport
	switch job {
	case service.JobForceClockOut:
		report = svc.Sweep.ForceClockOutAll(ctx)
	case service.JobReconcile:
		report = svc.Sweep.ReconcileAll(ctx, day)
	case service.JobMaterialize:
		report = svc.Sweep.MaterializeAll(ctx, target)
	case service.JobExpireRequests:
		report = svc.Sweep.ExpireRequests(ctx)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if !report.OK() {
		return 2
	}
	return 0
}

func printUsage() {
	fmt.Println("用法: sweep <任务> [选项]")
	fmt.Println()
	fmt.Println("任务:")
	fmt.Println("  force-clockout       强制签退所有仍在岗的员工")
	fmt.Println("  reconcile            核对所有门店某日（-date，缺省昨天）")
	fmt.Println("  materialize          按模板生成某周排班（-week，缺省下周）")
	fmt.Println("  expire-requests      过期未决的代班/换班申请")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  -config PATH         配置文件路径（默认读取 CLOCK_CONFIG）")
	fmt.Println("  -timeout DURATION    整体超时，默认 30m")
}
