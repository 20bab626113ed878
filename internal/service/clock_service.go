package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/repository"
	pkgerrors "clock-in-system/backend/pkg/errors"
	"clock-in-system/backend/pkg/geo"
	"clock-in-system/backend/pkg/timeutil"
)

// ── 打卡模块业务错误 ──

var (
	ErrEmployeeNotFound       = errors.New("员工不存在")
	ErrStoreNotFound          = errors.New("门店不存在")
	ErrActivityNotFound       = errors.New("出勤记录不存在")
	ErrInactiveEmployee       = errors.New("员工已停用")
	ErrInactiveStore          = errors.New("门店已停用")
	ErrNotAssociatedWithStore = errors.New("员工不属于该门店")
	ErrNotStoreManager        = errors.New("无该门店的管理权限")
	ErrAlreadyClockedIn       = errors.New("已在该门店签到")
	ErrAlreadyClockedOut      = errors.New("当前未签到")
	ErrMissingLocation        = errors.New("缺少位置信息")
	ErrOutOfRange             = errors.New("不在门店打卡范围内")
	ErrStartingTooSoon        = errors.New("距上次签退时间过短")
	ErrClockingOutTooSoon     = errors.New("距签到时间过短")
	ErrInvalidTimeRange       = errors.New("时间范围无效")
	ErrMultiDayActivity       = errors.New("出勤记录不能跨越多个自然日")
	ErrFutureActivity         = errors.New("出勤时间不能晚于当前时间")
	ErrShiftTooShort          = errors.New("出勤时长低于最短要求")
	ErrDeleteWindowExpired    = errors.New("出勤记录已超过可删除期限")
	ErrInvalidDeliveries      = errors.New("配送单数不能为负")
)

// ClockService 打卡业务接口
type ClockService interface {
	// 签到
	ClockIn(ctx context.Context, employeeID, storeID string, coord *geo.Coordinate) (*model.Activity, error)
	// 签退（同时触发排班核对）
	ClockOut(ctx context.Context, employeeID, storeID string, coord *geo.Coordinate, deliveries int) (*model.Activity, error)
	// 当前打卡状态
	Status(ctx context.Context, employeeID, storeID string) (*dto.ClockStatusResponse, error)
	// 经理修改出勤记录
	EditActivity(ctx context.Context, activityID string, req *dto.EditActivityRequest, managerID string) (*model.Activity, error)
	// 经理删除出勤记录
	DeleteActivity(ctx context.Context, activityID, managerID string) error
	// 强制签退门店所有未签退记录，返回处理条数
	ForceClockOutStore(ctx context.Context, storeID string) (int, error)
}

type clockService struct {
	repo      *repository.Repository
	rules     *Rules
	auth      Authority
	holidays  HolidayCalendar
	notifier  Notifier
	reconcile *reconciler
	logger    *zap.Logger
	now       func() time.Time
}

// NewClockService 创建 ClockService 实例
func NewClockService(
	repo *repository.Repository,
	rules *Rules,
	auth Authority,
	holidays HolidayCalendar,
	notifier Notifier,
	logger *zap.Logger,
) ClockService {
	return newClockService(repo, rules, auth, holidays, notifier, logger, time.Now)
}

func newClockService(
	repo *repository.Repository,
	rules *Rules,
	auth Authority,
	holidays HolidayCalendar,
	notifier Notifier,
	logger *zap.Logger,
	now func() time.Time,
) *clockService {
	return &clockService{
		repo:      repo,
		rules:     rules,
		auth:      auth,
		holidays:  holidays,
		notifier:  notifier,
		reconcile: newReconciler(rules, logger, now),
		logger:    logger,
		now:       now,
	}
}

// ════════════════════════════════════════════════════════════
// ClockIn
// ════════════════════════════════════════════════════════════

func (s *clockService) ClockIn(ctx context.Context, employeeID, storeID string, coord *geo.Coordinate) (*model.Activity, error) {
	now := s.now().In(s.rules.Location)
	// 节假日查询在事务外进行，失败不影响签到
	isHoliday := s.isPublicHoliday(ctx, now)

	var activity *model.Activity
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		// 1. 员工在职（行锁串行化同一员工的并发打卡）
		if _, err := s.lockActiveEmployee(ctx, tx, employeeID); err != nil {
			return err
		}

		// 2. 未在该门店签到
		open, err := tx.Activity.GetOpen(ctx, employeeID, storeID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if _, ok := model.NextActivityState(open.State(), model.ActionClockIn); !ok {
			return ErrAlreadyClockedIn
		}

		// 3-5. 关联、门店状态、地理围栏
		if _, err := s.checkStoreAccess(ctx, tx, employeeID, storeID, coord); err != nil {
			return err
		}

		// 6. 距上次签退（任意门店）的最短间隔
		last, err := tx.Activity.GetLastClosed(ctx, employeeID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if last != nil && last.LogoutTimestamp != nil && now.Sub(*last.LogoutTimestamp) < s.rules.MinGapBetweenShifts {
			return ErrStartingTooSoon
		}

		activity = &model.Activity{
			EmployeeID:      employeeID,
			StoreID:         storeID,
			LoginTimestamp:  now,
			LoginTime:       timeutil.Round(now, s.rules.RoundingInterval),
			IsPublicHoliday: isHoliday,
			LastModified:    now,
		}
		if err := tx.Activity.Create(ctx, activity); err != nil {
			if errors.Is(err, pkgerrors.ErrDuplicateKey) {
				return ErrAlreadyClockedIn
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "签到失败", zap.String("employee_id", employeeID), zap.String("store_id", storeID))
	}

	s.logger.Info("员工签到",
		zap.String("employee_id", employeeID),
		zap.String("store_id", storeID),
		zap.String("activity_id", activity.ActivityID),
		zap.Time("login_time", activity.LoginTime),
	)
	return activity, nil
}

// ════════════════════════════════════════════════════════════
// ClockOut
// ════════════════════════════════════════════════════════════

func (s *clockService) ClockOut(ctx context.Context, employeeID, storeID string, coord *geo.Coordinate, deliveries int) (*model.Activity, error) {
	if deliveries < 0 {
		return nil, ErrInvalidDeliveries
	}
	now := s.now().In(s.rules.Location)

	var activity *model.Activity
	var box outbox
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := s.lockActiveEmployee(ctx, tx, employeeID); err != nil {
			return err
		}

		open, err := tx.Activity.GetOpen(ctx, employeeID, storeID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if _, ok := model.NextActivityState(open.State(), model.ActionClockOut); !ok {
			return ErrAlreadyClockedOut
		}

		if _, err := s.checkStoreAccess(ctx, tx, employeeID, storeID, coord); err != nil {
			return err
		}

		if now.Sub(open.LoginTimestamp) < s.rules.MinClockOutGap {
			return ErrClockingOutTooSoon
		}

		s.close(open, now, deliveries)
		if err := tx.Activity.Update(ctx, open); err != nil {
			return err
		}
		activity = open
		return s.reconcile.reconcileActivity(ctx, tx, open, &box)
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "签退失败", zap.String("employee_id", employeeID), zap.String("store_id", storeID))
	}
	box.flush(ctx, s.notifier)

	s.logger.Info("员工签退",
		zap.String("employee_id", employeeID),
		zap.String("store_id", storeID),
		zap.String("activity_id", activity.ActivityID),
		zap.Int("shift_length_mins", activity.ShiftLengthMins),
	)
	return activity, nil
}

// close 写入签退时间并计算时长
func (s *clockService) close(a *model.Activity, now time.Time, deliveries int) {
	logout := timeutil.Round(now, s.rules.RoundingInterval)
	a.LogoutTimestamp = &now
	a.LogoutTime = &logout
	a.Deliveries = deliveries
	a.ShiftLengthMins = max(timeutil.ElapsedMinutes(a.LoginTime, logout), 0)
	a.LastModified = now
}

// ════════════════════════════════════════════════════════════
// Status
// ════════════════════════════════════════════════════════════

func (s *clockService) Status(ctx context.Context, employeeID, storeID string) (*dto.ClockStatusResponse, error) {
	open, err := s.repo.Activity.GetOpen(ctx, employeeID, storeID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询打卡状态失败", zap.Error(err))
		return nil, err
	}
	return &dto.ClockStatusResponse{
		State:    open.State(),
		Activity: dto.NewActivityResponse(open, s.rules.Location),
	}, nil
}

// ════════════════════════════════════════════════════════════
// EditActivity 经理修改，跳过地理围栏与最短间隔
// ════════════════════════════════════════════════════════════

func (s *clockService) EditActivity(ctx context.Context, activityID string, req *dto.EditActivityRequest, managerID string) (*model.Activity, error) {
	now := s.now().In(s.rules.Location)
	loc := s.rules.Location

	var activity *model.Activity
	var box outbox
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		// 与打卡相同的加锁顺序：先员工行，再出勤记录
		peek, err := tx.Activity.GetByID(ctx, activityID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActivityNotFound
			}
			return err
		}
		if err := lockEmployees(ctx, tx, peek.EmployeeID); err != nil {
			return err
		}
		a, err := tx.Activity.GetByIDForUpdate(ctx, activityID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActivityNotFound
			}
			return err
		}
		if err := requireManager(ctx, s.auth, managerID, a.StoreID); err != nil {
			return err
		}

		loginExact := req.LoginTime.In(loc)
		login := timeutil.Round(loginExact, s.rules.RoundingInterval)
		if loginExact.After(now) {
			return ErrFutureActivity
		}

		var logoutExact, logout *time.Time
		if req.LogoutTime != nil {
			le := req.LogoutTime.In(loc)
			lr := timeutil.Round(le, s.rules.RoundingInterval)
			logoutExact, logout = &le, &lr
		} else if !a.IsOpen() {
			// 已签退的记录不能改回未签退
			return ErrInvalidTimeRange
		}

		if logout != nil {
			if logoutExact.After(now) {
				return ErrFutureActivity
			}
			if !logout.After(login) {
				return ErrInvalidTimeRange
			}
			dayStart, dayEnd := s.rules.dayBounds(login)
			if logout.Before(dayStart) || logout.After(dayEnd) {
				return ErrMultiDayActivity
			}
			if timeutil.ElapsedMinutes(login, *logout) < s.rules.MinShiftLengthMins {
				return ErrShiftTooShort
			}
		}

		// 与同日其他出勤记录冲突检测（排除自身）
		dayStart, dayEnd := s.rules.dayBounds(login)
		sameDay, err := tx.Activity.ListByEmployeeStore(ctx, a.EmployeeID, a.StoreID, dayStart, dayEnd)
		if err != nil {
			return err
		}
		candidate := Interval{ID: a.ActivityID, Start: login, End: logout}
		if _, hit := FindConflict(candidate, activityIntervals(sameDay, loc), s.rules.ConflictGap, a.ActivityID); hit {
			return ErrConflictingInterval
		}

		a.LoginTimestamp = loginExact
		a.LoginTime = login
		a.LogoutTimestamp = logoutExact
		a.LogoutTime = logout
		a.ShiftLengthMins = 0
		if logout != nil {
			a.ShiftLengthMins = timeutil.ElapsedMinutes(login, *logout)
		}
		if req.Deliveries != nil {
			a.Deliveries = *req.Deliveries
		}
		a.LastModified = now
		a.UpdatedBy = &managerID
		if err := tx.Activity.Update(ctx, a); err != nil {
			return err
		}
		activity = a
		return s.reconcile.reconcileActivity(ctx, tx, a, &box)
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "修改出勤记录失败", zap.String("activity_id", activityID))
	}
	box.flush(ctx, s.notifier)
	return activity, nil
}

// ════════════════════════════════════════════════════════════
// DeleteActivity
// ════════════════════════════════════════════════════════════

func (s *clockService) DeleteActivity(ctx context.Context, activityID, managerID string) error {
	now := s.now()
	var box outbox
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		a, err := tx.Activity.GetByIDForUpdate(ctx, activityID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActivityNotFound
			}
			return err
		}
		if err := requireManager(ctx, s.auth, managerID, a.StoreID); err != nil {
			return err
		}
		if now.Sub(a.LoginTimestamp) > s.rules.DeleteWindow {
			return ErrDeleteWindowExpired
		}
		if err := s.reconcile.onActivityDeleted(ctx, tx, a, &box); err != nil {
			return err
		}
		return tx.Activity.Delete(ctx, a.ActivityID)
	})
	if err != nil {
		return logInternal(s.logger, err, "删除出勤记录失败", zap.String("activity_id", activityID))
	}
	box.flush(ctx, s.notifier)
	s.logger.Info("出勤记录已删除", zap.String("activity_id", activityID), zap.String("manager_id", managerID))
	return nil
}

// ════════════════════════════════════════════════════════════
// ForceClockOutStore 定时任务调用，不检查围栏与最短间隔
// ════════════════════════════════════════════════════════════

func (s *clockService) ForceClockOutStore(ctx context.Context, storeID string) (int, error) {
	open, err := s.repo.Activity.ListOpenByStore(ctx, storeID)
	if err != nil {
		s.logger.Error("查询未签退记录失败", zap.String("store_id", storeID), zap.Error(err))
		return 0, err
	}

	var errs []error
	closed := 0
	for i := range open {
		activityID := open[i].ActivityID
		var box outbox
		done := false
		err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			a, err := tx.Activity.GetByIDForUpdate(ctx, activityID)
			if err != nil {
				return err
			}
			if !a.IsOpen() {
				// 期间已正常签退
				return nil
			}
			s.close(a, s.now().In(s.rules.Location), 0)
			if err := tx.Activity.Update(ctx, a); err != nil {
				return err
			}
			box.add(Notice{
				Recipients:  []string{a.EmployeeID},
				ManagersOf:  a.StoreID,
				Type:        NoticeForcedClockOut,
				Title:       "已被系统自动签退",
				Content:     fmt.Sprintf("签到于 %s 的出勤记录已被自动签退", a.LoginTime.In(s.rules.Location).Format("2006-01-02 15:04")),
				RelatedType: "activity",
				RelatedID:   a.ActivityID,
			})
			done = true
			return s.reconcile.reconcileActivity(ctx, tx, a, &box)
		})
		if err != nil {
			s.logger.Error("强制签退失败", zap.String("activity_id", activityID), zap.Error(err))
			errs = append(errs, fmt.Errorf("activity %s: %w", activityID, err))
			continue
		}
		if done {
			closed++
		}
		box.flush(ctx, s.notifier)
	}

	if closed > 0 {
		s.logger.Info("强制签退完成", zap.String("store_id", storeID), zap.Int("count", closed))
	}
	return closed, errors.Join(errs...)
}

// ── 前置条件 ──

func (s *clockService) lockActiveEmployee(ctx context.Context, tx *repository.Repository, employeeID string) (*model.Employee, error) {
	emp, err := tx.Employee.GetByIDForUpdate(ctx, employeeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}
	if !emp.IsActive {
		return nil, ErrInactiveEmployee
	}
	return emp, nil
}

// checkStoreAccess 依次检查门店关联、门店状态、位置与地理围栏
func (s *clockService) checkStoreAccess(ctx context.Context, tx *repository.Repository, employeeID, storeID string, coord *geo.Coordinate) (*model.Store, error) {
	ok, err := s.auth.IsAssociated(ctx, employeeID, storeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAssociatedWithStore
	}

	store, err := tx.Store.GetByID(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}
	if !store.IsActive {
		return nil, ErrInactiveStore
	}

	if coord == nil {
		return nil, ErrMissingLocation
	}
	var storeCoord *geo.Coordinate
	if store.HasLocation() {
		storeCoord = &geo.Coordinate{Latitude: *store.Latitude, Longitude: *store.Longitude}
	}
	if !geo.WithinRange(coord, storeCoord, store.ClockingRadiusM) {
		return nil, ErrOutOfRange
	}
	return store, nil
}

func (s *clockService) isPublicHoliday(ctx context.Context, t time.Time) bool {
	if s.holidays == nil {
		return false
	}
	v, err := s.holidays.IsPublicHoliday(ctx, t)
	if err != nil {
		s.logger.Warn("查询节假日失败，按非节假日处理", zap.String("date", s.rules.dateKey(t)), zap.Error(err))
		return false
	}
	return v
}
