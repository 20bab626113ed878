package service

import (
	"errors"
	"time"

	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/pkg/timeutil"
)

// ErrConflictingInterval 时间段与已有排班或出勤冲突
var ErrConflictingInterval = errors.New("时间段与已有记录冲突")

// ── 时间段冲突检测 ──────────────────────────────────────────
//
// 出勤记录与排班共用同一套判定：
//   候选区间两侧各扩展 gap 后与已有区间做半开区间相交判断。
//   未结束的区间视为延伸到开始当日 23:59:59。
//   只比较同一员工、同一门店、同一自然日的区间，因此 24:00 结束的
//   排班与次日 00:00 开始的排班不受 gap 约束。
// ─────────────────────────────────────────────────────────────

// Interval 待比较的时间段，End 为 nil 表示尚未结束
type Interval struct {
	ID    string
	Start time.Time
	End   *time.Time
}

func (iv Interval) end() time.Time {
	if iv.End != nil {
		return *iv.End
	}
	y, m, d := iv.Start.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, iv.Start.Location())
}

// IntervalsConflict 判断 a 扩展 gap 后是否与 b 相交，结果对 a、b 对称
func IntervalsConflict(a, b Interval, gap time.Duration) bool {
	aStart := a.Start.Add(-gap)
	aEnd := a.end().Add(gap)
	return aStart.Before(b.end()) && aEnd.After(b.Start)
}

// FindConflict 返回 existing 中第一个与 candidate 冲突的区间，excludeID 对应的记录跳过
func FindConflict(candidate Interval, existing []Interval, gap time.Duration, excludeID string) (*Interval, bool) {
	for i := range existing {
		if excludeID != "" && existing[i].ID == excludeID {
			continue
		}
		if IntervalsConflict(candidate, existing[i], gap) {
			return &existing[i], true
		}
	}
	return nil, false
}

// shiftInterval 将排班的日期与时刻换算为区间
func shiftInterval(shift *model.Shift, loc *time.Location) (Interval, error) {
	start, end, err := shiftWindow(shift.Date, shift.StartTime, shift.EndTime, loc)
	if err != nil {
		return Interval{}, err
	}
	return Interval{ID: shift.ShiftID, Start: start, End: &end}, nil
}

// shiftWindow 计算排班的起止时刻，"24:00" 即次日零点
func shiftWindow(date time.Time, startTime, endTime string, loc *time.Location) (time.Time, time.Time, error) {
	startMin, err := timeutil.ParseClock(startTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endMin, err := timeutil.ParseClock(endTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day := timeutil.CivilDate(date, loc)
	return timeutil.At(day, startMin, loc), timeutil.At(day, endMin, loc), nil
}

// activityInterval 出勤记录按取整后的时间换算为区间
func activityInterval(a *model.Activity, loc *time.Location) Interval {
	iv := Interval{ID: a.ActivityID, Start: a.LoginTime.In(loc)}
	if a.LogoutTime != nil {
		end := a.LogoutTime.In(loc)
		iv.End = &end
	}
	return iv
}

func shiftIntervals(shifts []model.Shift, loc *time.Location) ([]Interval, error) {
	list := make([]Interval, 0, len(shifts))
	for i := range shifts {
		iv, err := shiftInterval(&shifts[i], loc)
		if err != nil {
			return nil, err
		}
		list = append(list, iv)
	}
	return list, nil
}

func activityIntervals(activities []model.Activity, loc *time.Location) []Interval {
	list := make([]Interval, 0, len(activities))
	for i := range activities {
		list = append(list, activityInterval(&activities[i], loc))
	}
	return list
}
