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
	"clock-in-system/backend/pkg/timeutil"
)

// ── 循环排班模块业务错误 ──

var (
	ErrRepeatingShiftNotFound = errors.New("循环排班模板不存在")
	ErrInvalidWeekday         = errors.New("星期取值无效")
	ErrInvalidActiveWeeks     = errors.New("生效周次超出轮换周期")
)

// RepeatingShiftService 循环排班模板与按周生成
type RepeatingShiftService interface {
	Create(ctx context.Context, req *dto.CreateRepeatingShiftRequest, managerID string) (*model.RepeatingShift, error)
	Delete(ctx context.Context, id, managerID string) error
	List(ctx context.Context, storeID, managerID string) ([]model.RepeatingShift, error)
	// Materialize 按模板生成 weekStart 所在周的排班，单门店一个事务
	Materialize(ctx context.Context, storeID string, weekStart time.Time) (*dto.BatchResult, error)
	// Generate 经理手动触发生成
	Generate(ctx context.Context, storeID string, weekStart time.Time, managerID string) (*dto.BatchResult, error)
}

type repeatingShiftService struct {
	repo     *repository.Repository
	rules    *Rules
	auth     Authority
	notifier Notifier
	logger   *zap.Logger
}

// NewRepeatingShiftService 创建 RepeatingShiftService 实例
func NewRepeatingShiftService(repo *repository.Repository, rules *Rules, auth Authority, notifier Notifier, logger *zap.Logger) RepeatingShiftService {
	return &repeatingShiftService{repo: repo, rules: rules, auth: auth, notifier: notifier, logger: logger}
}

// ════════════════════════════════════════════════════════════
// 模板管理
// ════════════════════════════════════════════════════════════

func (s *repeatingShiftService) Create(ctx context.Context, req *dto.CreateRepeatingShiftRequest, managerID string) (*model.RepeatingShift, error) {
	start, end, err := normalizeTemplateWindow(req.StartWeekday, req.EndWeekday, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	weeks, err := s.normalizeWeeks(req.ActiveWeeks)
	if err != nil {
		return nil, err
	}

	if err := requireManager(ctx, s.auth, managerID, req.StoreID); err != nil {
		return nil, logInternal(s.logger, err, "校验经理权限失败")
	}
	emp, err := s.repo.Employee.GetByID(ctx, req.EmployeeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmployeeNotFound
		}
		s.logger.Error("查询员工失败", zap.Error(err))
		return nil, err
	}
	if !emp.IsActive {
		return nil, ErrInactiveEmployee
	}
	ok, err := s.auth.IsAssociated(ctx, req.EmployeeID, req.StoreID)
	if err != nil {
		return nil, logInternal(s.logger, err, "校验门店关联失败")
	}
	if !ok {
		return nil, ErrNotAssociatedWithStore
	}

	rs := &model.RepeatingShift{
		EmployeeID:   req.EmployeeID,
		StoreID:      req.StoreID,
		Role:         req.Role,
		StartWeekday: req.StartWeekday,
		EndWeekday:   req.EndWeekday,
		StartTime:    start,
		EndTime:      end,
		Comment:      req.Comment,
		ActiveWeeks:  weeks,
	}
	rs.CreatedBy = &managerID
	if err := s.repo.RepeatingShift.Create(ctx, rs); err != nil {
		s.logger.Error("创建循环排班失败", zap.Error(err))
		return nil, err
	}
	return rs, nil
}

func (s *repeatingShiftService) Delete(ctx context.Context, id, managerID string) error {
	rs, err := s.repo.RepeatingShift.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRepeatingShiftNotFound
		}
		s.logger.Error("查询循环排班失败", zap.Error(err))
		return err
	}
	if err := requireManager(ctx, s.auth, managerID, rs.StoreID); err != nil {
		return logInternal(s.logger, err, "校验经理权限失败")
	}
	// 已生成的排班不受影响
	if err := s.repo.RepeatingShift.Delete(ctx, id); err != nil {
		s.logger.Error("删除循环排班失败", zap.Error(err))
		return err
	}
	return nil
}

func (s *repeatingShiftService) List(ctx context.Context, storeID, managerID string) ([]model.RepeatingShift, error) {
	if err := requireManager(ctx, s.auth, managerID, storeID); err != nil {
		return nil, logInternal(s.logger, err, "校验经理权限失败")
	}
	list, err := s.repo.RepeatingShift.ListByStore(ctx, storeID)
	if err != nil {
		s.logger.Error("查询循环排班失败", zap.Error(err))
		return nil, err
	}
	return list, nil
}

// ════════════════════════════════════════════════════════════
// Materialize
// ════════════════════════════════════════════════════════════

func (s *repeatingShiftService) Materialize(ctx context.Context, storeID string, weekStart time.Time) (*dto.BatchResult, error) {
	loc := s.rules.Location
	week := timeutil.WeekStart(weekStart, loc)
	index := s.rules.RotationIndex(week)
	result := &dto.BatchResult{}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		store, err := tx.Store.GetByID(ctx, storeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStoreNotFound
			}
			return err
		}
		if !store.IsActive {
			return ErrInactiveStore
		}
		if !store.SchedulingEnabled {
			return ErrSchedulingDisabled
		}

		templates, err := tx.RepeatingShift.ListByStore(ctx, storeID)
		if err != nil {
			return err
		}
		employeeIDs := make([]string, 0, len(templates))
		for i := range templates {
			if templates[i].ActiveWeeks.Contains(index) {
				employeeIDs = append(employeeIDs, templates[i].EmployeeID)
			}
		}
		if err := lockEmployees(ctx, tx, employeeIDs...); err != nil {
			return err
		}
		existing, err := tx.Shift.ListByStoreRange(ctx, storeID,
			week.Format("2006-01-02"), week.AddDate(0, 0, 6).Format("2006-01-02"))
		if err != nil {
			return err
		}

		for i := range templates {
			tpl := &templates[i]
			if !tpl.ActiveWeeks.Contains(index) {
				continue
			}
			date := week.AddDate(0, 0, tpl.StartWeekday-1)
			skip := dto.SkipDetail{SourceID: tpl.RepeatingShiftID, EmployeeID: tpl.EmployeeID, Date: date.Format("2006-01-02")}

			reason, err := s.checkEmployee(ctx, tx, tpl.EmployeeID, storeID)
			if err != nil {
				return err
			}
			if reason != "" {
				skip.Reason = reason
				result.Skip(skip)
				continue
			}

			start, end, err := normalizeWindow(tpl.StartTime, tpl.EndTime)
			if err != nil {
				skip.Reason = SkipInvalid
				result.Skip(skip)
				continue
			}
			shift := &model.Shift{
				EmployeeID: tpl.EmployeeID,
				StoreID:    storeID,
				Role:       tpl.Role,
				Date:       date,
				StartTime:  start,
				EndTime:    end,
				Comment:    tpl.Comment,
			}
			candidate, err := shiftInterval(shift, loc)
			if err != nil {
				skip.Reason = SkipInvalid
				result.Skip(skip)
				continue
			}
			conflicts, err := conflictingShifts(candidate, tpl.EmployeeID, existing, loc, s.rules.ConflictGap)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				skip.Reason = SkipConflict
				result.Skip(skip)
				continue
			}

			if err := tx.Shift.Create(ctx, shift); err != nil {
				return err
			}
			existing = append(existing, *shift)
			result.Created++
		}
		return nil
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "生成循环排班失败",
			zap.String("store_id", storeID), zap.String("week", week.Format("2006-01-02")))
	}

	s.logger.Info("循环排班生成完成",
		zap.String("store_id", storeID),
		zap.String("week", week.Format("2006-01-02")),
		zap.Int("rotation_index", index),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	if s.notifier != nil && (result.Created > 0 || result.Skipped > 0) {
		s.notifier.Notify(ctx, Notice{
			ManagersOf: storeID,
			Type:       NoticeShiftsGenerated,
			Title:      "循环排班已生成",
			Content: fmt.Sprintf("%s 当周（第 %d 周）新增 %d 条排班，跳过 %d 条",
				week.Format("2006-01-02"), index, result.Created, result.Skipped),
			RelatedType: "store",
			RelatedID:   storeID,
		})
	}
	return result, nil
}

func (s *repeatingShiftService) Generate(ctx context.Context, storeID string, weekStart time.Time, managerID string) (*dto.BatchResult, error) {
	if err := requireManager(ctx, s.auth, managerID, storeID); err != nil {
		return nil, logInternal(s.logger, err, "校验经理权限失败")
	}
	return s.Materialize(ctx, storeID, weekStart)
}

// checkEmployee 返回跳过原因，可生成时返回空串
func (s *repeatingShiftService) checkEmployee(ctx context.Context, tx *repository.Repository, employeeID, storeID string) (string, error) {
	emp, err := tx.Employee.GetByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SkipInactive, nil
		}
		return "", err
	}
	if !emp.IsActive {
		return SkipInactive, nil
	}
	ok, err := s.auth.IsAssociated(ctx, employeeID, storeID)
	if err != nil {
		return "", err
	}
	if !ok {
		return SkipNotAssociated, nil
	}
	return "", nil
}

// normalizeWeeks 去重并校验生效周次
func (s *repeatingShiftService) normalizeWeeks(weeks []int) (model.IntArray, error) {
	if len(weeks) == 0 {
		return nil, ErrInvalidActiveWeeks
	}
	seen := make(map[int]bool, len(weeks))
	out := make(model.IntArray, 0, len(weeks))
	for _, w := range weeks {
		if w < 1 || w > s.rules.RotationWeeks {
			return nil, ErrInvalidActiveWeeks
		}
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out, nil
}

// normalizeTemplateWindow 模板只允许当天结束，或在次日 00:00 结束（记为 24:00）
func normalizeTemplateWindow(startWeekday, endWeekday int, startTime, endTime string) (string, string, error) {
	if startWeekday < 1 || startWeekday > 7 || endWeekday < 1 || endWeekday > 7 {
		return "", "", ErrInvalidWeekday
	}
	if endWeekday != startWeekday {
		if endWeekday != startWeekday%7+1 {
			return "", "", ErrInvalidTimeRange
		}
		end, err := timeutil.ParseClock(endTime)
		if err != nil || end != 0 {
			return "", "", ErrInvalidTimeRange
		}
		endTime = timeutil.FormatClock(timeutil.MinutesPerDay)
	}
	return normalizeWindow(startTime, endTime)
}
