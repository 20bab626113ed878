package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"clock-in-system/backend/internal/dto"
	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/repository"
	"clock-in-system/backend/pkg/timeutil"
)

// ── 排班模块业务错误 ──

var (
	ErrShiftNotFound      = errors.New("排班不存在")
	ErrSchedulingDisabled = errors.New("门店未启用排班")
	ErrInvalidDate        = errors.New("日期格式无效")
	ErrInvalidWeek        = errors.New("源周与目标周不能相同")
)

// 批量生成跳过原因
const (
	SkipInactive      = "inactive"
	SkipNotAssociated = "not_associated"
	SkipConflict      = "conflict"
	SkipInvalid       = "invalid"
)

// ShiftService 排班业务接口
type ShiftService interface {
	// 创建排班
	Create(ctx context.Context, req *dto.CreateShiftRequest, managerID string) (*model.Shift, error)
	// 修改排班
	Update(ctx context.Context, shiftID string, req *dto.UpdateShiftRequest, managerID string) (*model.Shift, error)
	// 软删除排班（清理关联异常、取消进行中的申请）
	Delete(ctx context.Context, shiftID, managerID string) error
	// 获取单条排班
	GetByID(ctx context.Context, shiftID string) (*model.Shift, error)
	// 门店某周排班
	ListWeek(ctx context.Context, storeID string, weekStart time.Time) ([]model.Shift, error)
	// 整周复制
	CopyWeek(ctx context.Context, req *dto.CopyWeekRequest, managerID string) (*dto.BatchResult, error)
}

type shiftService struct {
	repo      *repository.Repository
	rules     *Rules
	auth      Authority
	notifier  Notifier
	reconcile *reconciler
	logger    *zap.Logger
	now       func() time.Time
}

// NewShiftService 创建 ShiftService 实例
func NewShiftService(repo *repository.Repository, rules *Rules, auth Authority, notifier Notifier, logger *zap.Logger) ShiftService {
	return newShiftService(repo, rules, auth, notifier, logger, time.Now)
}

func newShiftService(repo *repository.Repository, rules *Rules, auth Authority, notifier Notifier, logger *zap.Logger, now func() time.Time) *shiftService {
	return &shiftService{
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
// Create
// ════════════════════════════════════════════════════════════

func (s *shiftService) Create(ctx context.Context, req *dto.CreateShiftRequest, managerID string) (*model.Shift, error) {
	date, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	start, end, err := normalizeWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	var shift *model.Shift
	var box outbox
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := requireManager(ctx, s.auth, managerID, req.StoreID); err != nil {
			return err
		}
		if err := s.checkSchedulable(ctx, tx, req.StoreID); err != nil {
			return err
		}
		if err := s.checkAssignable(ctx, tx, req.EmployeeID, req.StoreID); err != nil {
			return err
		}

		shift = &model.Shift{
			EmployeeID: req.EmployeeID,
			StoreID:    req.StoreID,
			Role:       req.Role,
			Date:       date,
			StartTime:  start,
			EndTime:    end,
			Comment:    req.Comment,
		}
		shift.CreatedBy = &managerID
		if err := checkShiftConflict(ctx, tx, s.rules, shift, ""); err != nil {
			return err
		}
		if err := tx.Shift.Create(ctx, shift); err != nil {
			return err
		}
		// 补录的历史排班立即核对
		return s.reconcile.refreshShift(ctx, tx, shift, &box)
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "创建排班失败", zap.String("store_id", req.StoreID))
	}
	box.flush(ctx, s.notifier)
	return shift, nil
}

// ════════════════════════════════════════════════════════════
// Update
// ════════════════════════════════════════════════════════════

func (s *shiftService) Update(ctx context.Context, shiftID string, req *dto.UpdateShiftRequest, managerID string) (*model.Shift, error) {
	var shift *model.Shift
	var box outbox
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		shift, err = s.lockShift(ctx, tx, shiftID)
		if err != nil {
			return err
		}
		if err := requireManager(ctx, s.auth, managerID, shift.StoreID); err != nil {
			return err
		}

		if req.Date != nil {
			date, err := s.parseDate(*req.Date)
			if err != nil {
				return err
			}
			shift.Date = date
		}
		startTime, endTime := shift.StartTime, shift.EndTime
		if req.StartTime != nil {
			startTime = *req.StartTime
		}
		if req.EndTime != nil {
			endTime = *req.EndTime
		}
		start, end, err := normalizeWindow(startTime, endTime)
		if err != nil {
			return err
		}
		shift.StartTime, shift.EndTime = start, end
		if req.Role != nil {
			shift.Role = req.Role
		}
		if req.Comment != nil {
			shift.Comment = *req.Comment
		}
		shift.UpdatedBy = &managerID

		if err := checkShiftConflict(ctx, tx, s.rules, shift, shift.ShiftID); err != nil {
			return err
		}
		if err := tx.Shift.Update(ctx, shift); err != nil {
			return err
		}
		return s.reconcile.refreshShift(ctx, tx, shift, &box)
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "修改排班失败", zap.String("shift_id", shiftID))
	}
	box.flush(ctx, s.notifier)
	return shift, nil
}

// ════════════════════════════════════════════════════════════
// Delete
// ════════════════════════════════════════════════════════════

func (s *shiftService) Delete(ctx context.Context, shiftID, managerID string) error {
	var box outbox
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		shift, err := s.lockShift(ctx, tx, shiftID)
		if err != nil {
			return err
		}
		if err := requireManager(ctx, s.auth, managerID, shift.StoreID); err != nil {
			return err
		}
		shift.UpdatedBy = &managerID
		return deleteShift(ctx, tx, s.reconcile, shift, managerID, &box)
	})
	if err != nil {
		return logInternal(s.logger, err, "删除排班失败", zap.String("shift_id", shiftID))
	}
	box.flush(ctx, s.notifier)
	s.logger.Info("排班已删除", zap.String("shift_id", shiftID), zap.String("manager_id", managerID))
	return nil
}

// deleteShift 软删除排班并执行删除钩子：取消进行中的申请、处理关联异常
func deleteShift(ctx context.Context, tx *repository.Repository, rec *reconciler, shift *model.Shift, actorID string, box *outbox) error {
	active, err := tx.ShiftRequest.GetActiveByShift(ctx, shift.ShiftID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if active != nil {
		if err := transition(active, model.RequestActionExpire, actorID, rec.now()); err != nil {
			return err
		}
		if err := tx.ShiftRequest.Update(ctx, active); err != nil {
			return err
		}
		box.add(requestNotice(active, "排班已删除，申请已取消"))
	}

	if err := tx.Shift.SoftDelete(ctx, shift); err != nil {
		return err
	}
	return rec.onShiftDeleted(ctx, tx, shift, box)
}

// ════════════════════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════════════════════

func (s *shiftService) GetByID(ctx context.Context, shiftID string) (*model.Shift, error) {
	shift, err := s.repo.Shift.GetByID(ctx, shiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		s.logger.Error("查询排班失败", zap.Error(err))
		return nil, err
	}
	if shift.IsDeleted {
		return nil, ErrShiftNotFound
	}
	return shift, nil
}

func (s *shiftService) ListWeek(ctx context.Context, storeID string, weekStart time.Time) ([]model.Shift, error) {
	from := timeutil.WeekStart(weekStart, s.rules.Location)
	to := from.AddDate(0, 0, 6)
	list, err := s.repo.Shift.ListByStoreRange(ctx, storeID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		s.logger.Error("查询周排班失败", zap.Error(err))
		return nil, err
	}
	return list, nil
}

// ════════════════════════════════════════════════════════════
// CopyWeek 按星期偏移复制整周排班
// ════════════════════════════════════════════════════════════

func (s *shiftService) CopyWeek(ctx context.Context, req *dto.CopyWeekRequest, managerID string) (*dto.BatchResult, error) {
	fromDate, err := s.parseDate(req.FromWeek)
	if err != nil {
		return nil, err
	}
	toDate, err := s.parseDate(req.ToWeek)
	if err != nil {
		return nil, err
	}
	loc := s.rules.Location
	fromWeek := timeutil.WeekStart(fromDate, loc)
	toWeek := timeutil.WeekStart(toDate, loc)
	if fromWeek.Equal(toWeek) {
		return nil, ErrInvalidWeek
	}
	offsetDays := timeutil.DaysBetween(fromWeek, toWeek)

	result := &dto.BatchResult{}
	var box outbox
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := requireManager(ctx, s.auth, managerID, req.StoreID); err != nil {
			return err
		}
		if err := s.checkSchedulable(ctx, tx, req.StoreID); err != nil {
			return err
		}

		source, err := tx.Shift.ListByStoreRange(ctx, req.StoreID,
			fromWeek.Format("2006-01-02"), fromWeek.AddDate(0, 0, 6).Format("2006-01-02"))
		if err != nil {
			return err
		}
		// 目标周的排班须在锁定相关员工后读取
		employeeIDs := make([]string, 0, len(source))
		for i := range source {
			employeeIDs = append(employeeIDs, source[i].EmployeeID)
		}
		if err := lockEmployees(ctx, tx, employeeIDs...); err != nil {
			return err
		}
		dest, err := tx.Shift.ListByStoreRange(ctx, req.StoreID,
			toWeek.Format("2006-01-02"), toWeek.AddDate(0, 0, 6).Format("2006-01-02"))
		if err != nil {
			return err
		}

		for i := range source {
			src := &source[i]
			// 补登生成的排班不代表计划
			if src.IsUnscheduled {
				continue
			}
			date := timeutil.CivilDate(src.Date, loc).AddDate(0, 0, offsetDays)
			shift := &model.Shift{
				EmployeeID: src.EmployeeID,
				StoreID:    src.StoreID,
				Role:       src.Role,
				Date:       date,
				StartTime:  src.StartTime,
				EndTime:    src.EndTime,
				Comment:    src.Comment,
			}
			shift.CreatedBy = &managerID
			skip := dto.SkipDetail{SourceID: src.ShiftID, EmployeeID: src.EmployeeID, Date: date.Format("2006-01-02")}

			candidate, err := shiftInterval(shift, loc)
			if err != nil {
				skip.Reason = SkipInvalid
				result.Skip(skip)
				continue
			}

			conflicts, err := conflictingShifts(candidate, shift.EmployeeID, dest, loc, s.rules.ConflictGap)
			if err != nil {
				return err
			}
			replaced := false
			if len(conflicts) > 0 {
				if !req.Override {
					skip.Reason = SkipConflict
					result.Skip(skip)
					continue
				}
				for _, idx := range conflicts {
					old := &dest[idx]
					old.UpdatedBy = &managerID
					if err := deleteShift(ctx, tx, s.reconcile, old, managerID, &box); err != nil {
						return err
					}
				}
				replaced = true
			}

			if err := tx.Shift.Create(ctx, shift); err != nil {
				return err
			}
			dest = append(dest, *shift)
			if replaced {
				result.Updated++
			} else {
				result.Created++
			}
		}
		return nil
	})
	if err != nil {
		return nil, logInternal(s.logger, err, "复制周排班失败", zap.String("store_id", req.StoreID))
	}
	box.flush(ctx, s.notifier)

	s.logger.Info("周排班复制完成",
		zap.String("store_id", req.StoreID),
		zap.String("from_week", fromWeek.Format("2006-01-02")),
		zap.String("to_week", toWeek.Format("2006-01-02")),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// ── 辅助函数 ──

func (s *shiftService) parseDate(v string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", v, s.rules.Location)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

func (s *shiftService) lockShift(ctx context.Context, tx *repository.Repository, shiftID string) (*model.Shift, error) {
	shift, err := tx.Shift.GetByIDForUpdate(ctx, shiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		return nil, err
	}
	if shift.IsDeleted {
		return nil, ErrShiftNotFound
	}
	return shift, nil
}

func (s *shiftService) checkSchedulable(ctx context.Context, tx *repository.Repository, storeID string) error {
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
	return nil
}

func (s *shiftService) checkAssignable(ctx context.Context, tx *repository.Repository, employeeID, storeID string) error {
	emp, err := tx.Employee.GetByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEmployeeNotFound
		}
		return err
	}
	if !emp.IsActive {
		return ErrInactiveEmployee
	}
	ok, err := s.auth.IsAssociated(ctx, employeeID, storeID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAssociatedWithStore
	}
	return nil
}

// normalizeWindow 校验并统一排班起止为 "HH:MM"；结束可为 24:00
func normalizeWindow(startTime, endTime string) (string, string, error) {
	start, err := timeutil.ParseClock(startTime)
	if err != nil || start >= timeutil.MinutesPerDay {
		return "", "", ErrInvalidTimeRange
	}
	end, err := timeutil.ParseClock(endTime)
	if err != nil || end <= start {
		return "", "", ErrInvalidTimeRange
	}
	return timeutil.FormatClock(start), timeutil.FormatClock(end), nil
}

// lockEmployees 按 employee_id 升序加行锁，串行化同一员工的冲突检测与写入；不存在的员工跳过
func lockEmployees(ctx context.Context, tx *repository.Repository, employeeIDs ...string) error {
	ids := slices.Clone(employeeIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := tx.Employee.GetByIDForUpdate(ctx, id); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return nil
}

// checkShiftConflict 同员工、同门店、同日的排班冲突检测，先锁定员工行再读取
func checkShiftConflict(ctx context.Context, tx *repository.Repository, rules *Rules, shift *model.Shift, excludeID string) error {
	candidate, err := shiftInterval(shift, rules.Location)
	if err != nil {
		return ErrInvalidTimeRange
	}
	if err := lockEmployees(ctx, tx, shift.EmployeeID); err != nil {
		return err
	}
	existing, err := tx.Shift.ListByEmployeeStoreDate(ctx, shift.EmployeeID, shift.StoreID, shift.Date.Format("2006-01-02"))
	if err != nil {
		return err
	}
	intervals, err := shiftIntervals(existing, rules.Location)
	if err != nil {
		return err
	}
	if _, hit := FindConflict(candidate, intervals, rules.ConflictGap, excludeID); hit {
		return ErrConflictingInterval
	}
	return nil
}

// conflictingShifts 返回 list 中与候选区间冲突的同员工排班下标
func conflictingShifts(candidate Interval, employeeID string, list []model.Shift, loc *time.Location, gap time.Duration) ([]int, error) {
	var hits []int
	for i := range list {
		if list[i].EmployeeID != employeeID || list[i].IsDeleted {
			continue
		}
		iv, err := shiftInterval(&list[i], loc)
		if err != nil {
			return nil, err
		}
		if !timeutil.SameDate(iv.Start, candidate.Start, loc) {
			continue
		}
		if IntervalsConflict(candidate, iv, gap) {
			hits = append(hits, i)
		}
	}
	return hits, nil
}
