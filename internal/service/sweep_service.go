package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/repository"
)

// 定时任务名称
const (
	JobForceClockOut  = "force-clockout"
	JobReconcile      = "reconcile"
	JobMaterialize    = "materialize"
	JobExpireRequests = "expire-requests"
)

// SweepFailure 单个处理单元（门店或申请）的失败记录
type SweepFailure struct {
	Unit  string `json:"unit"`
	Error string `json:"error"`
}

// SweepReport 定时任务执行汇总，供管理员查看
type SweepReport struct {
	Job        string         `json:"job"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Units      int            `json:"units"`
	Processed  int            `json:"processed"`
	Failures   []SweepFailure `json:"failures,omitempty"`
}

// OK 是否全部成功
func (r *SweepReport) OK() bool { return len(r.Failures) == 0 }

func (r *SweepReport) fail(unit string, err error) {
	r.Failures = append(r.Failures, SweepFailure{Unit: unit, Error: err.Error()})
}

// SweepService 外部调度器触发的批处理任务；按门店隔离，单个门店失败不影响其他门店
type SweepService interface {
	ForceClockOutAll(ctx context.Context) *SweepReport
	ReconcileAll(ctx context.Context, day time.Time) *SweepReport
	MaterializeAll(ctx context.Context, weekStart time.Time) *SweepReport
	ExpireRequests(ctx context.Context) *SweepReport
}

type sweepService struct {
	repo      *repository.Repository
	clock     ClockService
	exception ExceptionService
	repeating RepeatingShiftService
	requests  ShiftRequestService
	logger    *zap.Logger
	now       func() time.Time
}

// NewSweepService 创建 SweepService 实例
func NewSweepService(
	repo *repository.Repository,
	clock ClockService,
	exception ExceptionService,
	repeating RepeatingShiftService,
	requests ShiftRequestService,
	logger *zap.Logger,
) SweepService {
	return &sweepService{
		repo:      repo,
		clock:     clock,
		exception: exception,
		repeating: repeating,
		requests:  requests,
		logger:    logger,
		now:       time.Now,
	}
}

// ForceClockOutAll 关闭所有门店（含已停用门店）的未签退记录
func (s *sweepService) ForceClockOutAll(ctx context.Context) *SweepReport {
	return s.eachStore(ctx, JobForceClockOut, false, func(store *model.Store) (int, error) {
		return s.clock.ForceClockOutStore(ctx, store.StoreID)
	})
}

// ReconcileAll 核对各门店 day 当日的出勤与排班
func (s *sweepService) ReconcileAll(ctx context.Context, day time.Time) *SweepReport {
	return s.eachStore(ctx, JobReconcile, true, func(store *model.Store) (int, error) {
		res, err := s.exception.SweepStore(ctx, store.StoreID, day)
		if err != nil {
			return 0, err
		}
		return res.Activities + res.Shifts, nil
	})
}

// MaterializeAll 为启用排班的门店生成 weekStart 所在周的循环排班
func (s *sweepService) MaterializeAll(ctx context.Context, weekStart time.Time) *SweepReport {
	return s.eachStore(ctx, JobMaterialize, true, func(store *model.Store) (int, error) {
		if !store.SchedulingEnabled {
			return 0, nil
		}
		res, err := s.repeating.Materialize(ctx, store.StoreID, weekStart)
		if err != nil {
			return 0, err
		}
		return res.Created, nil
	})
}

// ExpireRequests 取消排班日期已过的进行中申请
func (s *sweepService) ExpireRequests(ctx context.Context) *SweepReport {
	report := &SweepReport{Job: JobExpireRequests, StartedAt: s.now(), Units: 1}
	n, err := s.requests.ExpireStale(ctx, report.StartedAt)
	report.Processed = n
	if err != nil {
		report.fail("shift_requests", err)
	}
	report.FinishedAt = s.now()
	s.logReport(report)
	return report
}

func (s *sweepService) eachStore(ctx context.Context, job string, activeOnly bool, fn func(*model.Store) (int, error)) *SweepReport {
	report := &SweepReport{Job: job, StartedAt: s.now()}
	defer func() {
		report.FinishedAt = s.now()
		s.logReport(report)
	}()

	stores, err := s.repo.Store.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("查询门店列表失败", zap.String("job", job), zap.Error(err))
		report.fail("stores", err)
		return report
	}
	report.Units = len(stores)

	for i := range stores {
		if ctx.Err() != nil {
			report.fail(stores[i].StoreID, ctx.Err())
			continue
		}
		n, err := fn(&stores[i])
		if err != nil {
			s.logger.Error("门店任务失败",
				zap.String("job", job),
				zap.String("store_id", stores[i].StoreID),
				zap.Error(err),
			)
			report.fail(stores[i].StoreID, err)
		}
		report.Processed += n
	}
	return report
}

func (s *sweepService) logReport(r *SweepReport) {
	fields := []zap.Field{
		zap.String("job", r.Job),
		zap.Int("units", r.Units),
		zap.Int("processed", r.Processed),
		zap.Int("failures", len(r.Failures)),
		zap.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)),
	}
	if r.OK() {
		s.logger.Info("定时任务完成", fields...)
		return
	}
	s.logger.Warn("定时任务部分失败", fields...)
}
