package timeutil

import (
	"testing"
	"time"
)

func perth(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Perth")
	if err != nil {
		t.Skipf("缺少时区数据: %v", err)
	}
	return loc
}

func TestRound(t *testing.T) {
	loc := perth(t)
	day := func(d, h, m, s int) time.Time { return time.Date(2024, 3, d, h, m, s, 0, loc) }

	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"向下取整", day(10, 14, 37, 0), day(10, 14, 30, 0)},
		{"向上取整", day(10, 14, 42, 0), day(10, 14, 45, 0)},
		{"恰好一半向上", day(10, 14, 37, 30), day(10, 14, 45, 0)},
		{"整点不变", day(10, 9, 0, 0), day(10, 9, 0, 0)},
		{"秒级偏差", day(10, 9, 0, 7), day(10, 9, 0, 0)},
		{"跨越零点", day(10, 23, 58, 0), day(11, 0, 0, 0)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Round(c.in, 15)
			if !got.Equal(c.want) {
				t.Errorf("期望 %v，实际 %v", c.want, got)
			}
		})
	}
}

func TestRound_IdempotentAndBounded(t *testing.T) {
	loc := perth(t)
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, loc)
	for i := 0; i < 24*60*2; i += 7 {
		in := start.Add(time.Duration(i) * 30 * time.Second)
		once := Round(in, 15)
		if twice := Round(once, 15); !twice.Equal(once) {
			t.Fatalf("取整应幂等: %v -> %v -> %v", in, once, twice)
		}
		diff := once.Sub(in)
		if diff < 0 {
			diff = -diff
		}
		if diff > 7*time.Minute+30*time.Second {
			t.Fatalf("取整偏差超过半个间隔: %v -> %v", in, once)
		}
		if once.Minute()%15 != 0 || once.Second() != 0 {
			t.Fatalf("结果应落在间隔点上: %v", once)
		}
	}
}

func TestElapsedMinutes(t *testing.T) {
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	if got := ElapsedMinutes(base, base.Add(90*time.Minute+59*time.Second)); got != 90 {
		t.Errorf("期望 90，实际 %d", got)
	}
	if got := ElapsedMinutes(base, base); got != 0 {
		t.Errorf("期望 0，实际 %d", got)
	}
}

func TestParseClock(t *testing.T) {
	ok := map[string]int{"00:00": 0, "09:30": 570, "17:45:00": 1065, "24:00": 1440, "24:00:00.000000": 1440}
	for in, want := range ok {
		got, err := ParseClock(in)
		if err != nil {
			t.Fatalf("ParseClock(%q) 应成功: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseClock(%q) 期望 %d，实际 %d", in, want, got)
		}
	}
	for _, in := range []string{"", "9", "25:00", "12:60", "24:01", "ab:cd", "10:00:30"} {
		if _, err := ParseClock(in); err == nil {
			t.Errorf("ParseClock(%q) 应失败", in)
		}
	}
}

func TestWeekStartAndISOWeekday(t *testing.T) {
	loc := perth(t)
	sun := time.Date(2024, 3, 10, 15, 0, 0, 0, loc)
	ws := WeekStart(sun, loc)
	if ws.Weekday() != time.Monday || ws.Day() != 4 {
		t.Errorf("期望 3 月 4 日周一，实际 %v", ws)
	}
	if ISOWeekday(time.Sunday) != 7 || ISOWeekday(time.Monday) != 1 {
		t.Error("ISO 星期换算错误")
	}
}

func TestAt(t *testing.T) {
	loc := perth(t)
	d := time.Date(2024, 3, 10, 0, 0, 0, 0, loc)
	if got := At(d, 1440, loc); !got.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, loc)) {
		t.Errorf("24:00 应为次日零点，实际 %v", got)
	}
}

func TestDaysBetween(t *testing.T) {
	loc := perth(t)
	a := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	cases := []struct {
		b    time.Time
		want int
	}{
		{a, 0},
		{time.Date(2024, 3, 11, 0, 0, 0, 0, loc), 7},
		{time.Date(2024, 2, 26, 0, 0, 0, 0, loc), -7},
		{time.Date(2025, 3, 3, 0, 0, 0, 0, loc), 364},
	}
	for _, c := range cases {
		if got := DaysBetween(a, c.b); got != c.want {
			t.Errorf("DaysBetween(%s) 期望 %d，实际 %d", c.b.Format("2006-01-02"), c.want, got)
		}
	}
}
