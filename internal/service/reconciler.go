package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/repository"
)

// ── 排班-出勤核对 ──────────────────────────────────────────
//
// 对已签退的出勤记录，在同一员工、门店、自然日的未删除排班中寻找对应排班：
//   1. 取整后的签到/签退时间与排班起止完全一致 → 完全匹配，不保留未审核异常
//   2. 无完全匹配但有候选排班 → 选最接近的候选，记 incorrectly_clocked
//   3. 无候选排班 → 仅关联出勤记录，记 unscheduled_shift
//   4. 排班时段结束仍无对应出勤 → 仅关联排班，记 missed_shift
//
// 候选排班排除：其异常已批准、其异常关联了其他出勤记录、已被其他出勤记录完全匹配。
// 已批准的异常为终态，不再参与核对。
// 所有写入只在内容变化时发生，重复执行不产生重复异常。
// ─────────────────────────────────────────────────────────────

type reconciler struct {
	rules  *Rules
	logger *zap.Logger
	now    func() time.Time
}

func newReconciler(rules *Rules, logger *zap.Logger, now func() time.Time) *reconciler {
	return &reconciler{rules: rules, logger: logger, now: now}
}

type shiftCandidate struct {
	shift     *model.Shift
	start     time.Time
	end       time.Time
	exception *model.ShiftException
}

func isPerfectMatch(a *model.Activity, start, end time.Time) bool {
	return a.LogoutTime != nil && a.LoginTime.Equal(start) && a.LogoutTime.Equal(end)
}

// ════════════════════════════════════════════════════════════
// 出勤记录侧
// ════════════════════════════════════════════════════════════

// reconcileActivity 为一条出勤记录核对排班，未签退的记录不处理
func (r *reconciler) reconcileActivity(ctx context.Context, tx *repository.Repository, a *model.Activity, box *outbox) error {
	if a.IsOpen() {
		return nil
	}
	actEx, err := exceptionByActivity(ctx, tx, a.ActivityID)
	if err != nil {
		return err
	}
	if actEx != nil && actEx.IsApproved {
		return nil
	}

	candidates, err := r.candidatesFor(ctx, tx, a)
	if err != nil {
		return err
	}

	var released *string
	if actEx != nil && actEx.ShiftID != nil {
		id := *actEx.ShiftID
		released = &id
	}

	var linked string
	if perfect := findPerfect(a, candidates); perfect != nil {
		linked = perfect.shift.ShiftID
		err = r.retire(ctx, tx, a, actEx, perfect)
	} else if best := bestCandidate(a, candidates); best != nil {
		linked = best.shift.ShiftID
		err = r.link(ctx, tx, a, actEx, best, box)
	} else {
		err = r.markUnscheduled(ctx, tx, a, actEx, box)
	}
	if err != nil {
		return err
	}

	// 原先关联的排班失去了出勤记录，需要重新判断是否缺勤
	if released != nil && *released != linked {
		shift, err := tx.Shift.GetByID(ctx, *released)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if shift != nil {
			return r.flagMissed(ctx, tx, shift, box)
		}
	}
	return nil
}

// candidatesFor 出勤记录当日可关联的排班
func (r *reconciler) candidatesFor(ctx context.Context, tx *repository.Repository, a *model.Activity) ([]shiftCandidate, error) {
	shifts, err := tx.Shift.ListByEmployeeStoreDate(ctx, a.EmployeeID, a.StoreID, r.rules.dateKey(a.LoginTime))
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return nil, nil
	}

	dayStart, dayEnd := r.rules.dayBounds(a.LoginTime)
	sameDay, err := tx.Activity.ListByEmployeeStore(ctx, a.EmployeeID, a.StoreID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	var result []shiftCandidate
	for i := range shifts {
		shift := &shifts[i]
		start, end, err := shiftWindow(shift.Date, shift.StartTime, shift.EndTime, r.rules.Location)
		if err != nil {
			r.logger.Warn("排班时间无法解析，跳过", zap.String("shift_id", shift.ShiftID), zap.Error(err))
			continue
		}

		ex, err := exceptionByShift(ctx, tx, shift.ShiftID)
		if err != nil {
			return nil, err
		}
		if ex != nil {
			if ex.IsApproved {
				continue
			}
			if ex.ActivityID != nil && *ex.ActivityID != a.ActivityID {
				continue
			}
		}

		matchedElsewhere := false
		for j := range sameDay {
			other := &sameDay[j]
			if other.ActivityID == a.ActivityID {
				continue
			}
			if isPerfectMatch(other, start, end) {
				matchedElsewhere = true
				break
			}
		}
		if matchedElsewhere {
			continue
		}

		result = append(result, shiftCandidate{shift: shift, start: start, end: end, exception: ex})
	}
	return result, nil
}

func findPerfect(a *model.Activity, candidates []shiftCandidate) *shiftCandidate {
	for i := range candidates {
		if isPerfectMatch(a, candidates[i].start, candidates[i].end) {
			return &candidates[i]
		}
	}
	return nil
}

// bestCandidate 起止偏差之和最小者；相同时取起点偏差小者，再取 shift_id 小者
func bestCandidate(a *model.Activity, candidates []shiftCandidate) *shiftCandidate {
	if len(candidates) == 0 {
		return nil
	}
	type scored struct {
		c        *shiftCandidate
		total    time.Duration
		startAbs time.Duration
	}
	list := make([]scored, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		startAbs := absDuration(a.LoginTime.Sub(c.start))
		endAbs := absDuration(a.LogoutTime.Sub(c.end))
		list = append(list, scored{c: c, total: startAbs + endAbs, startAbs: startAbs})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].total != list[j].total {
			return list[i].total < list[j].total
		}
		if list[i].startAbs != list[j].startAbs {
			return list[i].startAbs < list[j].startAbs
		}
		return list[i].c.shift.ShiftID < list[j].c.shift.ShiftID
	})
	return list[0].c
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// retire 完全匹配：删除排班侧的缺勤异常，出勤侧未审核异常标记为 resolved
func (r *reconciler) retire(ctx context.Context, tx *repository.Repository, a *model.Activity, actEx *model.ShiftException, c *shiftCandidate) error {
	if c.exception != nil && (actEx == nil || c.exception.ExceptionID != actEx.ExceptionID) {
		if err := tx.Exception.Delete(ctx, c.exception.ExceptionID); err != nil {
			return err
		}
	}
	if actEx == nil {
		return nil
	}
	shiftID := c.shift.ShiftID
	now := r.now()
	actEx.ShiftID = &shiftID
	actEx.Reason = model.ReasonResolved
	actEx.IsApproved = true
	actEx.ApprovedAt = &now
	r.logger.Info("异常已自动消除",
		zap.String("exception_id", actEx.ExceptionID),
		zap.String("activity_id", a.ActivityID),
		zap.String("shift_id", shiftID),
	)
	return tx.Exception.Update(ctx, actEx)
}

// link 以 incorrectly_clocked 关联出勤记录与候选排班
func (r *reconciler) link(ctx context.Context, tx *repository.Repository, a *model.Activity, actEx *model.ShiftException, c *shiftCandidate, box *outbox) error {
	shiftID := c.shift.ShiftID
	activityID := a.ActivityID

	target := actEx
	if c.exception != nil && (actEx == nil || c.exception.ExceptionID != actEx.ExceptionID) {
		if actEx == nil {
			// 沿用排班侧的缺勤异常
			target = c.exception
		} else if err := tx.Exception.Delete(ctx, c.exception.ExceptionID); err != nil {
			return err
		}
	}

	if target == nil {
		ex := &model.ShiftException{
			ShiftID:    &shiftID,
			ActivityID: &activityID,
			StoreID:    a.StoreID,
			Reason:     model.ReasonIncorrectlyClocked,
		}
		if err := tx.Exception.Create(ctx, ex); err != nil {
			return err
		}
		box.add(exceptionNotice(ex, a.EmployeeID))
		return nil
	}

	reasonChanged := target.Reason != model.ReasonIncorrectlyClocked
	if !applyLink(target, &shiftID, &activityID, model.ReasonIncorrectlyClocked) {
		return nil
	}
	if err := tx.Exception.Update(ctx, target); err != nil {
		return err
	}
	if reasonChanged {
		box.add(exceptionNotice(target, a.EmployeeID))
	}
	return nil
}

// markUnscheduled 无排班可关联，记 unscheduled_shift
func (r *reconciler) markUnscheduled(ctx context.Context, tx *repository.Repository, a *model.Activity, actEx *model.ShiftException, box *outbox) error {
	activityID := a.ActivityID
	if actEx == nil {
		ex := &model.ShiftException{
			ActivityID: &activityID,
			StoreID:    a.StoreID,
			Reason:     model.ReasonUnscheduledShift,
		}
		if err := tx.Exception.Create(ctx, ex); err != nil {
			return err
		}
		box.add(exceptionNotice(ex, a.EmployeeID))
		return nil
	}

	reasonChanged := actEx.Reason != model.ReasonUnscheduledShift
	if !applyLink(actEx, nil, &activityID, model.ReasonUnscheduledShift) {
		return nil
	}
	if err := tx.Exception.Update(ctx, actEx); err != nil {
		return err
	}
	if reasonChanged {
		box.add(exceptionNotice(actEx, a.EmployeeID))
	}
	return nil
}

// applyLink 写入关联与原因，返回是否有变化
func applyLink(e *model.ShiftException, shiftID, activityID *string, reason string) bool {
	changed := !sameID(e.ShiftID, shiftID) || !sameID(e.ActivityID, activityID) || e.Reason != reason
	e.ShiftID = shiftID
	e.ActivityID = activityID
	e.Reason = reason
	return changed
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ════════════════════════════════════════════════════════════
// 排班侧
// ════════════════════════════════════════════════════════════

// shiftElapsed 排班时段是否已结束
func (r *reconciler) shiftElapsed(shift *model.Shift) (bool, error) {
	_, end, err := shiftWindow(shift.Date, shift.StartTime, shift.EndTime, r.rules.Location)
	if err != nil {
		return false, err
	}
	return !end.After(r.now()), nil
}

// flagMissed 排班时段已结束且无任何关联或完全匹配时记 missed_shift
func (r *reconciler) flagMissed(ctx context.Context, tx *repository.Repository, shift *model.Shift, box *outbox) error {
	if shift.IsDeleted {
		return nil
	}
	start, end, err := shiftWindow(shift.Date, shift.StartTime, shift.EndTime, r.rules.Location)
	if err != nil {
		return err
	}
	if end.After(r.now()) {
		return nil
	}

	ex, err := exceptionByShift(ctx, tx, shift.ShiftID)
	if err != nil || ex != nil {
		return err
	}

	dayStart, dayEnd := r.rules.dayBounds(start)
	activities, err := tx.Activity.ListByEmployeeStore(ctx, shift.EmployeeID, shift.StoreID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	for i := range activities {
		if isPerfectMatch(&activities[i], start, end) {
			return nil
		}
	}

	shiftID := shift.ShiftID
	missed := &model.ShiftException{
		ShiftID: &shiftID,
		StoreID: shift.StoreID,
		Reason:  model.ReasonMissedShift,
	}
	if err := tx.Exception.Create(ctx, missed); err != nil {
		return err
	}
	box.add(exceptionNotice(missed, shift.EmployeeID))
	return nil
}

// reconcileShift 重新核对排班当日的全部出勤记录，再判断排班是否缺勤
func (r *reconciler) reconcileShift(ctx context.Context, tx *repository.Repository, shift *model.Shift, box *outbox) error {
	if shift.IsDeleted {
		return nil
	}
	start, _, err := shiftWindow(shift.Date, shift.StartTime, shift.EndTime, r.rules.Location)
	if err != nil {
		return err
	}
	dayStart, dayEnd := r.rules.dayBounds(start)
	activities, err := tx.Activity.ListByEmployeeStore(ctx, shift.EmployeeID, shift.StoreID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	for i := range activities {
		if err := r.reconcileActivity(ctx, tx, &activities[i], box); err != nil {
			return err
		}
	}
	return r.flagMissed(ctx, tx, shift, box)
}

// refreshShift 排班内容变化后重新核对：先处理原有未审核异常，再按新内容核对
func (r *reconciler) refreshShift(ctx context.Context, tx *repository.Repository, shift *model.Shift, box *outbox) error {
	ex, err := exceptionByShift(ctx, tx, shift.ShiftID)
	if err != nil {
		return err
	}
	elapsed, err := r.shiftElapsed(shift)
	if err != nil {
		return err
	}

	if ex != nil && !ex.IsApproved {
		if ex.ActivityID != nil {
			a, err := tx.Activity.GetByID(ctx, *ex.ActivityID)
			if err != nil {
				return fmt.Errorf("读取关联出勤记录失败: %w", err)
			}
			if err := r.reconcileActivity(ctx, tx, a, box); err != nil {
				return err
			}
		} else if !elapsed {
			if err := tx.Exception.Delete(ctx, ex.ExceptionID); err != nil {
				return err
			}
		}
	}

	if elapsed {
		return r.reconcileShift(ctx, tx, shift, box)
	}
	return nil
}

// ════════════════════════════════════════════════════════════
// 删除钩子
// ════════════════════════════════════════════════════════════

// onShiftDeleted 排班软删除之后调用
func (r *reconciler) onShiftDeleted(ctx context.Context, tx *repository.Repository, shift *model.Shift, box *outbox) error {
	ex, err := exceptionByShift(ctx, tx, shift.ShiftID)
	if err != nil || ex == nil {
		return err
	}

	if ex.ActivityID == nil {
		return tx.Exception.Delete(ctx, ex.ExceptionID)
	}

	ex.ShiftID = nil
	if err := tx.Exception.Update(ctx, ex); err != nil {
		return err
	}
	if ex.IsApproved {
		return nil
	}

	// 出勤记录仍需重新归类
	a, err := tx.Activity.GetByID(ctx, *ex.ActivityID)
	if err != nil {
		return fmt.Errorf("读取关联出勤记录失败: %w", err)
	}
	return r.reconcileActivity(ctx, tx, a, box)
}

// onActivityDeleted 出勤记录删除之前调用
func (r *reconciler) onActivityDeleted(ctx context.Context, tx *repository.Repository, a *model.Activity, box *outbox) error {
	ex, err := exceptionByActivity(ctx, tx, a.ActivityID)
	if err != nil || ex == nil {
		return err
	}

	if ex.ShiftID == nil {
		return tx.Exception.Delete(ctx, ex.ExceptionID)
	}

	ex.ActivityID = nil
	if ex.IsApproved {
		return tx.Exception.Update(ctx, ex)
	}

	shift, err := tx.Shift.GetByID(ctx, *ex.ShiftID)
	if err != nil {
		return fmt.Errorf("读取关联排班失败: %w", err)
	}
	elapsed, err := r.shiftElapsed(shift)
	if err != nil {
		return err
	}
	if shift.IsDeleted || !elapsed {
		return tx.Exception.Delete(ctx, ex.ExceptionID)
	}

	// 排班仍无人出勤
	reasonChanged := ex.Reason != model.ReasonMissedShift
	ex.Reason = model.ReasonMissedShift
	if err := tx.Exception.Update(ctx, ex); err != nil {
		return err
	}
	if reasonChanged {
		box.add(exceptionNotice(ex, shift.EmployeeID))
	}
	return nil
}

// ── 辅助函数 ──

func exceptionByShift(ctx context.Context, tx *repository.Repository, shiftID string) (*model.ShiftException, error) {
	ex, err := tx.Exception.GetByShift(ctx, shiftID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return ex, err
}

func exceptionByActivity(ctx context.Context, tx *repository.Repository, activityID string) (*model.ShiftException, error) {
	ex, err := tx.Exception.GetByActivity(ctx, activityID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return ex, err
}

var reasonTitles = map[string]string{
	model.ReasonIncorrectlyClocked: "打卡时间与排班不符",
	model.ReasonMissedShift:        "排班缺勤",
	model.ReasonUnscheduledShift:   "无排班出勤",
}

func exceptionNotice(ex *model.ShiftException, employeeID string) Notice {
	title := reasonTitles[ex.Reason]
	return Notice{
		Recipients:  []string{employeeID},
		ManagersOf:  ex.StoreID,
		Type:        NoticeExceptionCreated,
		Title:       title,
		Content:     fmt.Sprintf("出现待审核的考勤异常：%s", title),
		RelatedType: "shift_exception",
		RelatedID:   ex.ExceptionID,
	}
}
