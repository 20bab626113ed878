package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/repository"
	"clock-in-system/backend/pkg/timeutil"
)

// ── 异常审核模块业务错误 ──

var (
	ErrExceptionNotFound  = errors.New("异常记录不存在")
	ErrAlreadyApproved    = errors.New("异常已审核")
	ErrIncompleteActivity = errors.New("出勤记录不存在或尚未签退")
)

// ExceptionService 排班-出勤核对与异常审核接口
type ExceptionService interface {
	// 核对单条出勤记录
	ReconcileActivity(ctx context.Context, activityID string) error
	// 核对门店某日全部排班与出勤
	SweepStore(ctx context.Context, storeID string, day time.Time) (*dto.SweepResultResponse, error)
	// 门店待审核异常
	ListPending(ctx context.Context, storeID, managerID string) ([]model.ShiftException, error)
	// 批准
	Approve(ctx context.Context, exceptionID, managerID string) (*model.ShiftException, error)
	// 更正出勤时间并批准
	ApproveWithCorrection(ctx context.Context, exceptionID string, req *dto.ApproveWithCorrectionRequest, managerID string) (*model.ShiftException, error)
}

type exceptionService struct {
	repo      *repository.Repository
	rules     *Rules
	auth      Authority
	notifier  Notifier
	reconcile *reconciler
	logger    *zap.Logger
	now       func() time.Time
}

// NewExceptionService 创建 ExceptionService 实例
func NewExceptionService(repo *repository.Repository, rules *Rules, auth Authority, notifier Notifier, logger *zap.Logger) ExceptionService {
	return newExceptionService(repo, rules, auth, notifier, logger, time.Now)
}

func newExceptionService(repo *repository.Repository, rules *Rules, auth Authority, notifier Notifier, logger *zap.Logger, now func() time.Time) *exceptionService {
	return &exceptionService{
		repo:      repo,
		rules:     rules,
		auth:      auth,
		notifier:  notifier,
		reconcile: newReconciler(rules, logger, now),
		logger:    logger,
		now:       now,
	}
}

// ════════════════════════════════════════════════════════════
// 核对
// ════════════════════════════════════════════════════════════

func (s *exceptionService) ReconcileActivity(ctx context.Context, activityID string) error {
	var box outbox
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		a, err := tx.Activity.GetByIDForUpdate(ctx, activityID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActivityNotFound
			}
			return err
		}
		return s.reconcile.reconcileActivity(ctx, tx, a, &box)
	})
	if err != nil {
		return logInternal(s.logger, err, "核对出勤记录失败", zap.String("activity_id", activityID))
	}
	box.flush(ctx, s.notifier)
	return nil
}

// SweepStore 先核对当日全部已签退记录，再检查已结束的排班是否缺勤
func (s *exceptionService) SweepStore(ctx context.Context, storeID string, day time.Time) (*dto.SweepResultResponse, error) {
	dayStart, dayEnd := s.rules.dayBounds(day)
	date := s.rules.dateKey(dayStart)

	result := &dto.SweepResultResponse{}
	var box outbox
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		activities, err := tx.Activity.ListClosedByStore(ctx, storeID, dayStart, dayEnd)
		if err != nil {
			return err
		}
		for i := range activities {
			if err := s.reconcile.reconcileActivity(ctx, tx, &activities[i], &box); err != nil {
				return err
			}
		}
		result.Activities = len(activities)

		shifts, err := tx.Shift.ListByStoreRange(ctx, storeID, date, date)
		if err != nil {
			return err
		}
		for i := range shifts {
			if err := s.reconcile.flagMissed(ctx, tx, &shifts[i], &box); err != nil {
				return err
			}
		}
		result.Shifts = len(shifts)
		return nil
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "门店核对失败", zap.String("store_id", storeID), zap.String("date", date))
	}
	box.flush(ctx, s.notifier)
	return result, nil
}

func (s *exceptionService) ListPending(ctx context.Context, storeID, managerID string) ([]model.ShiftException, error) {
	if err := requireManager(ctx, s.auth, managerID, storeID); err != nil {
		return nil, logInternal(s.logger, err, "校验经理权限失败")
	}
	list, err := s.repo.Exception.ListPendingByStore(ctx, storeID)
	if err != nil {
		s.logger.Error("查询待审核异常失败", zap.Error(err))
		return nil, err
	}
	return list, nil
}

// ════════════════════════════════════════════════════════════
// Approve
// ════════════════════════════════════════════════════════════

func (s *exceptionService) Approve(ctx context.Context, exceptionID, managerID string) (*model.ShiftException, error) {
	var result *model.ShiftException
	var box outbox
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ex, err := s.lockPending(ctx, tx, exceptionID, managerID)
		if err != nil {
			return err
		}

		if ex.Reason == model.ReasonUnscheduledShift && ex.ShiftID == nil && ex.ActivityID != nil {
			a, err := tx.Activity.GetByID(ctx, *ex.ActivityID)
			if err != nil {
				return err
			}
			if err := s.injectShift(ctx, tx, ex, a, managerID); err != nil {
				return err
			}
		}

		s.markApproved(ex, managerID)
		if err := tx.Exception.Update(ctx, ex); err != nil {
			return err
		}
		result = ex
		box.add(s.decisionNotice(ctx, tx, ex))
		return nil
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "审核异常失败", zap.String("exception_id", exceptionID))
	}
	box.flush(ctx, s.notifier)
	return result, nil
}

// ════════════════════════════════════════════════════════════
// ApproveWithCorrection 以异常所属日期 + 新时刻改写出勤时间
// ════════════════════════════════════════════════════════════

func (s *exceptionService) ApproveWithCorrection(ctx context.Context, exceptionID string, req *dto.ApproveWithCorrectionRequest, managerID string) (*model.ShiftException, error) {
	loginMin, err := timeutil.ParseClock(req.LoginTime)
	if err != nil {
		return nil, ErrInvalidTimeRange
	}
	logoutMin, err := timeutil.ParseClock(req.LogoutTime)
	if err != nil || logoutMin <= loginMin {
		return nil, ErrInvalidTimeRange
	}

	loc := s.rules.Location
	var result *model.ShiftException
	var box outbox
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		ex, err := s.lockPending(ctx, tx, exceptionID, managerID)
		if err != nil {
			return err
		}
		if ex.ActivityID == nil {
			return ErrIncompleteActivity
		}
		a, err := tx.Activity.GetByIDForUpdate(ctx, *ex.ActivityID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrIncompleteActivity
			}
			return err
		}
		if a.IsOpen() {
			return ErrIncompleteActivity
		}

		var shift *model.Shift
		date := timeutil.DateOf(a.LoginTime, loc)
		if ex.ShiftID != nil {
			shift, err = tx.Shift.GetByIDForUpdate(ctx, *ex.ShiftID)
			if err != nil {
				return err
			}
			date = timeutil.CivilDate(shift.Date, loc)
		}

		// 保留更正前的时间，多次更正只记录第一次
		if ex.OriginalLoginTime == nil {
			origLogin := a.LoginTime
			ex.OriginalLoginTime = &origLogin
			ex.OriginalLogoutTime = a.LogoutTime
		}

		login := timeutil.Round(timeutil.At(date, loginMin, loc), s.rules.RoundingInterval)
		logout := timeutil.Round(timeutil.At(date, logoutMin, loc), s.rules.RoundingInterval)
		a.LoginTime = login
		a.LogoutTime = &logout
		a.ShiftLengthMins = timeutil.ElapsedMinutes(login, logout)
		a.LastModified = s.now()
		a.UpdatedBy = &managerID
		if err := tx.Activity.Update(ctx, a); err != nil {
			return err
		}

		if shift != nil && (req.Role != nil || req.Comment != nil) {
			if req.Role != nil {
				shift.Role = req.Role
			}
			if req.Comment != nil {
				shift.Comment = *req.Comment
			}
			shift.UpdatedBy = &managerID
			if err := tx.Shift.Update(ctx, shift); err != nil {
				return err
			}
		}

		if shift == nil && ex.Reason == model.ReasonUnscheduledShift {
			if err := s.injectShift(ctx, tx, ex, a, managerID); err != nil {
				return err
			}
		}

		s.markApproved(ex, managerID)
		if err := tx.Exception.Update(ctx, ex); err != nil {
			return err
		}
		result = ex
		box.add(s.decisionNotice(ctx, tx, ex))
		return nil
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "更正并审核异常失败", zap.String("exception_id", exceptionID))
	}
	box.flush(ctx, s.notifier)

	s.logger.Info("异常已更正并批准",
		zap.String("exception_id", exceptionID),
		zap.String("manager_id", managerID),
		zap.String("login_time", req.LoginTime),
		zap.String("logout_time", req.LogoutTime),
	)
	return result, nil
}

// ── 辅助函数 ──

// lockPending 行锁读取未审核的异常并校验经理权限
func (s *exceptionService) lockPending(ctx context.Context, tx *repository.Repository, exceptionID, managerID string) (*model.ShiftException, error) {
	ex, err := tx.Exception.GetByIDForUpdate(ctx, exceptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}
	if ex.IsApproved {
		return nil, ErrAlreadyApproved
	}
	if err := requireManager(ctx, s.auth, managerID, ex.StoreID); err != nil {
		return nil, err
	}
	return ex, nil
}

func (s *exceptionService) markApproved(ex *model.ShiftException, managerID string) {
	now := s.now()
	ex.IsApproved = true
	ex.ApprovedBy = &managerID
	ex.ApprovedAt = &now
	ex.UpdatedBy = &managerID
}

// injectShift 为无排班出勤补一条与出勤时间一致的排班
// 排班不跨日：签退恰为次日 00:00 时记为 24:00，更晚则须先用 ApproveWithCorrection 更正
func (s *exceptionService) injectShift(ctx context.Context, tx *repository.Repository, ex *model.ShiftException, a *model.Activity, managerID string) error {
	if a.IsOpen() {
		return ErrIncompleteActivity
	}
	loc := s.rules.Location
	login := a.LoginTime.In(loc)
	logout := a.LogoutTime.In(loc)
	date := timeutil.DateOf(login, loc)

	_, dayEnd := s.rules.dayBounds(login)
	if logout.After(dayEnd) {
		return ErrMultiDayActivity
	}
	end := timeutil.FormatClock(timeutil.MinuteOfDay(logout))
	if logout.Equal(dayEnd) {
		end = timeutil.FormatClock(timeutil.MinutesPerDay)
	}

	shift := &model.Shift{
		EmployeeID:    a.EmployeeID,
		StoreID:       a.StoreID,
		Date:          date,
		StartTime:     timeutil.FormatClock(timeutil.MinuteOfDay(login)),
		EndTime:       end,
		IsUnscheduled: true,
		Comment:       "由无排班出勤审核生成",
	}
	shift.CreatedBy = &managerID
	if err := tx.Shift.Create(ctx, shift); err != nil {
		return err
	}
	ex.ShiftID = &shift.ShiftID
	return nil
}

func (s *exceptionService) decisionNotice(ctx context.Context, tx *repository.Repository, ex *model.ShiftException) Notice {
	var recipients []string
	if ex.ActivityID != nil {
		if a, err := tx.Activity.GetByID(ctx, *ex.ActivityID); err == nil {
			recipients = append(recipients, a.EmployeeID)
		}
	} else if ex.ShiftID != nil {
		if shift, err := tx.Shift.GetByID(ctx, *ex.ShiftID); err == nil {
			recipients = append(recipients, shift.EmployeeID)
		}
	}
	return Notice{
		Recipients:  recipients,
		Type:        NoticeExceptionDecided,
		Title:       "考勤异常已审核",
		Content:     "你的考勤异常已由经理审核通过",
		RelatedType: "shift_exception",
		RelatedID:   ex.ExceptionID,
	}
}
