// Package timeutil 打卡时间取整与日期/时刻换算
package timeutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay 一天的分钟数，时刻字符串 "24:00" 对应该值
const MinutesPerDay = 24 * 60

// Round 将时间按 intervalMins 取整到最近的间隔点，恰好一半时向上取整。
// 余数按当日零点起的秒数计算，跨越零点时进位到次日 00:00。
func Round(t time.Time, intervalMins int) time.Time {
	if intervalMins <= 0 {
		return t
	}
	since := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	step := time.Duration(intervalMins) * time.Minute
	r := since % step
	rounded := since - r
	if 2*r >= step && r != 0 {
		rounded += step
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, int(rounded/time.Minute), 0, 0, t.Location())
}

// ElapsedMinutes 两个时间之间的整分钟数（向下取整）
func ElapsedMinutes(start, end time.Time) int {
	return int(math.Floor(end.Sub(start).Seconds() / 60))
}

// DateOf 返回 t 在 loc 时区中的日期零点
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// CivilDate 按年月日重新锚定到 loc 零点（用于从 date 列读出的值）
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SameDate 两个时间在 loc 时区是否同一天
func SameDate(a, b time.Time, loc *time.Location) bool {
	return DateOf(a, loc).Equal(DateOf(b, loc))
}

// DaysBetween 两个日历日之间相差的天数（b - a），不受夏令时影响
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

// WeekStart 返回 t 所在周的周一零点
func WeekStart(t time.Time, loc *time.Location) time.Time {
	d := DateOf(t, loc)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// ISOWeekday 将 time.Weekday (0=周日) 转为 ISO 8601 (1=周一 … 7=周日)
func ISOWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// ParseClock 解析 "HH:MM" 或 "HH:MM:SS" 为当日分钟数，允许 "24:00"
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("无效的时刻格式: %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("无效的时刻格式: %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("无效的时刻格式: %q", s)
	}
	if len(parts) == 3 {
		// 数据库 time 列可能带微秒部分，如 "24:00:00.000000"
		secPart := strings.SplitN(parts[2], ".", 2)[0]
		if sec, err := strconv.Atoi(secPart); err != nil || sec != 0 {
			return 0, fmt.Errorf("时刻不支持秒: %q", s)
		}
	}
	total := h*60 + m
	if h < 0 || m < 0 || m > 59 || total > MinutesPerDay {
		return 0, fmt.Errorf("时刻超出范围: %q", s)
	}
	return total, nil
}

// FormatClock 将分钟数格式化为 "HH:MM"
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeClock 统一为 "HH:MM"（数据库 time 列读出为 "HH:MM:SS"）
func NormalizeClock(s string) (string, error) {
	m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(m), nil
}

// At 返回 date 当天第 minutes 分钟的时刻，1440 即次日零点
func At(date time.Time, minutes int, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, minutes, 0, 0, loc)
}

// MinuteOfDay 时间在其所在日中的分钟数
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
