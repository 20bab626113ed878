package service

import (
	"fmt"
	"time"

	"clock-in-system/backend/config"
	"clock-in-system/backend/pkg/timeutil"
)

// Rules 打卡与排班规则（由 clocking 配置换算而来）
type Rules struct {
	Location            *time.Location
	RoundingInterval    int // 分钟
	MinGapBetweenShifts time.Duration
	MinClockOutGap      time.Duration
	MinShiftLengthMins  int
	ConflictGap         time.Duration
	EditTolerance       time.Duration
	DeleteWindow        time.Duration
	RotationEpoch       time.Time // 周一零点
	RotationWeeks       int
}

// NewRules 由配置构造规则
func NewRules(cfg *config.ClockingConfig) (*Rules, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("加载时区失败: %w", err)
	}
	epoch, err := time.ParseInLocation("2006-01-02", cfg.RotationEpoch, loc)
	if err != nil {
		return nil, fmt.Errorf("解析轮换起始周失败: %w", err)
	}
	return &Rules{
		Location:            loc,
		RoundingInterval:    cfg.RoundingIntervalMins,
		MinGapBetweenShifts: time.Duration(cfg.MinGapBetweenShiftsMins) * time.Minute,
		MinClockOutGap:      time.Duration(cfg.MinClockOutGapMins) * time.Minute,
		MinShiftLengthMins:  cfg.MinShiftLengthMins,
		ConflictGap:         time.Duration(cfg.ConflictGapMins) * time.Minute,
		EditTolerance:       cfg.EditTolerance,
		DeleteWindow:        time.Duration(cfg.ActivityDeleteWindowHours) * time.Hour,
		RotationEpoch:       epoch,
		RotationWeeks:       cfg.RotationWeeks,
	}, nil
}

// dateKey 日期在规则时区中的 "2006-01-02" 表示
func (r *Rules) dateKey(t time.Time) string {
	return t.In(r.Location).Format("2006-01-02")
}

// dayBounds 返回 t 所在日的 [00:00, 次日 00:00)
func (r *Rules) dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.In(r.Location).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, r.Location)
	return start, start.AddDate(0, 0, 1)
}

// RotationIndex 返回 week 所在周在轮换周期中的周次（1-based）
func (r *Rules) RotationIndex(week time.Time) int {
	weeks := timeutil.DaysBetween(r.RotationEpoch, timeutil.WeekStart(week, r.Location)) / 7
	n := r.RotationWeeks
	return ((weeks%n)+n)%n + 1
}
