package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"
)

// ── 法定节假日日历 ──────────────────────────────────────────
//
// 职责：回答某日是否为法定节假日，供签到时写入 is_public_holiday。
//   - 数据源为 iCalendar 订阅（URL 或本地文件），整日事件覆盖 [DTSTART, DTEND)
//   - FREQ=YEARLY 的 RRULE 展开到 holidayHorizonYears 年
//   - 查询结果经 HolidayCache 按日缓存，TTL 由配置决定
// ─────────────────────────────────────────────────────────────

const (
	icsMaxFileSize      = 5 * 1024 * 1024 // 5MB
	icsFetchTimeout     = 30 * time.Second
	holidayHorizonYears = 10
)

// HolidayCalendar 节假日查询接口
type HolidayCalendar interface {
	IsPublicHoliday(ctx context.Context, date time.Time) (bool, error)
}

// HolidayCache 按日期缓存节假日判定
type HolidayCache interface {
	GetHoliday(ctx context.Context, date string) (isHoliday bool, found bool, err error)
	SetHoliday(ctx context.Context, date string, isHoliday bool, ttl time.Duration) error
}

// ── 无数据源 ──

type noHolidays struct{}

// NewNoHolidayCalendar 未配置数据源时使用，所有日期均非节假日
func NewNoHolidayCalendar() HolidayCalendar { return noHolidays{} }

func (noHolidays) IsPublicHoliday(context.Context, time.Time) (bool, error) { return false, nil }

// ── ICS 数据源 ──

type icsHolidayCalendar struct {
	source  string
	loc     *time.Location
	refresh time.Duration
	logger  *zap.Logger

	// loading 串行化拉取；mu 只保护 dates 与 loadedAt，拉取期间不持有
	loading  sync.Mutex
	mu       sync.RWMutex
	dates    map[string]bool
	loadedAt time.Time
}

// NewICSHolidayCalendar 从 iCalendar 订阅读取节假日，refresh 后重新拉取
func NewICSHolidayCalendar(source string, loc *time.Location, refresh time.Duration, logger *zap.Logger) HolidayCalendar {
	return &icsHolidayCalendar{source: source, loc: loc, refresh: refresh, logger: logger}
}

func (c *icsHolidayCalendar) IsPublicHoliday(ctx context.Context, date time.Time) (bool, error) {
	key := date.In(c.loc).Format("2006-01-02")

	dates, fresh := c.snapshot()
	if fresh {
		return dates[key], nil
	}
	if dates != nil {
		// 已有旧数据：其他调用方正在刷新时直接用旧数据
		if !c.loading.TryLock() {
			return dates[key], nil
		}
	} else {
		c.loading.Lock()
	}
	defer c.loading.Unlock()

	// 等锁期间可能已被其他调用方刷新
	if dates, fresh = c.snapshot(); fresh {
		return dates[key], nil
	}

	loaded, err := c.load(ctx)
	if err != nil {
		if dates == nil {
			return false, err
		}
		c.logger.Warn("刷新节假日日历失败，沿用旧数据", zap.Error(err))
		return dates[key], nil
	}

	c.mu.Lock()
	c.dates = loaded
	c.loadedAt = time.Now()
	c.mu.Unlock()
	c.logger.Info("节假日日历已加载", zap.Int("days", len(loaded)))
	return loaded[key], nil
}

func (c *icsHolidayCalendar) snapshot() (map[string]bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dates, c.dates != nil && time.Since(c.loadedAt) <= c.refresh
}

func (c *icsHolidayCalendar) load(ctx context.Context) (map[string]bool, error) {
	var reader io.ReadCloser
	var err error
	if isRemoteSource(c.source) {
		reader, err = FetchICSContent(ctx, c.source)
	} else {
		reader, err = os.Open(c.source)
	}
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return ParseHolidayICS(reader, c.loc)
}

func isRemoteSource(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "webcal://")
}

// FetchICSContent 从 URL 获取 ICS 内容
func FetchICSContent(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	// webcal:// → https://
	u := rawURL
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("构造 ICS 请求失败: %w", err)
	}
	client := &http.Client{Timeout: icsFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取 ICS 失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("获取 ICS 失败: HTTP %d", resp.StatusCode)
	}
	// 限制响应体大小，防止恶意 URL 返回超大内容导致 OOM
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.LimitReader(resp.Body, icsMaxFileSize),
		Closer: resp.Body,
	}, nil
}

// ParseHolidayICS 解析节假日日历，返回 "2006-01-02" → true 的集合
func ParseHolidayICS(reader io.Reader, loc *time.Location) (map[string]bool, error) {
	cal, err := ics.ParseCalendar(reader)
	if err != nil {
		return nil, fmt.Errorf("ICS 格式解析失败: %w", err)
	}

	dates := make(map[string]bool)
	for _, evt := range cal.Events() {
		start, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
		if err != nil {
			continue
		}
		end, err := parseICSDateTime(evt, ics.ComponentPropertyDtEnd, loc)
		if err != nil || !end.After(start) {
			// 无 DTEND 的整日事件只占一天
			end = start.AddDate(0, 0, 1)
		}
		days := daysSpanned(start, end, loc)

		occurrences := []time.Time{start}
		if prop := evt.GetProperty(ics.ComponentPropertyRrule); prop != nil {
			occurrences = expandYearly(parseRRule(prop.Value), start)
		}
		exDates := parseExDates(evt, loc)

		for _, occ := range occurrences {
			if exDates[occ.Format("20060102")] {
				continue
			}
			for i := 0; i < days; i++ {
				dates[occ.AddDate(0, 0, i).Format("2006-01-02")] = true
			}
		}
	}
	return dates, nil
}

// daysSpanned [start, end) 覆盖的自然日数，至少为 1
func daysSpanned(start, end time.Time, loc *time.Location) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	n := 0
	for d := s; d.Before(end); d = d.AddDate(0, 0, 1) {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// rruleParams RRULE 解析结果
type rruleParams struct {
	freq     string
	interval int
	count    int
	until    time.Time
}

// parseRRule 解析 RRULE 字符串（如 FREQ=YEARLY;COUNT=5）
func parseRRule(value string) rruleParams {
	r := rruleParams{interval: 1}
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToUpper(kv[0]) {
		case "FREQ":
			r.freq = strings.ToUpper(kv[1])
		case "INTERVAL":
			fmt.Sscanf(kv[1], "%d", &r.interval)
		case "COUNT":
			fmt.Sscanf(kv[1], "%d", &r.count)
		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", kv[1])
			if err != nil {
				t, _ = time.Parse("20060102", kv[1])
			}
			r.until = t
		}
	}
	return r
}

// expandYearly 展开按年重复的节假日；其他频率只取首次
func expandYearly(rule rruleParams, first time.Time) []time.Time {
	if rule.freq != "YEARLY" {
		return []time.Time{first}
	}
	if rule.interval < 1 {
		rule.interval = 1
	}
	var list []time.Time
	for i := 0; i < holidayHorizonYears; i++ {
		if rule.count > 0 && i >= rule.count {
			break
		}
		occ := first.AddDate(i*rule.interval, 0, 0)
		if !rule.until.IsZero() && occ.After(rule.until) {
			break
		}
		list = append(list, occ)
	}
	return list
}

// parseExDates 解析事件中所有 EXDATE
func parseExDates(evt *ics.VEvent, loc *time.Location) map[string]bool {
	exDates := make(map[string]bool)
	for _, prop := range evt.Properties {
		if prop.IANAToken == string(ics.ComponentPropertyExdate) {
			t, err := time.Parse("20060102T150405Z", prop.Value)
			if err != nil {
				t, err = time.ParseInLocation("20060102T150405", prop.Value, loc)
				if err != nil {
					t, err = time.ParseInLocation("20060102", prop.Value, loc)
				}
			}
			if err == nil {
				exDates[t.In(loc).Format("20060102")] = true
			}
		}
	}
	return exDates
}

// parseICSDateTime 从 VEVENT 中解析日期时间属性
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, fmt.Errorf("missing property %s", propName)
	}
	val := prop.Value

	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
	}

	tzid := ""
	for k, v := range prop.ICalParameters {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			tzid = v[0]
		}
	}

	for _, layout := range formats {
		if t, err := time.Parse(layout, val); err == nil {
			if strings.HasSuffix(layout, "Z") {
				return t.In(loc), nil
			}
			if tzid != "" {
				if tzLoc, err := time.LoadLocation(tzid); err == nil {
					return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tzLoc).In(loc), nil
				}
			}
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
		}
	}

	return time.Time{}, fmt.Errorf("无法解析日期: %s", val)
}

// ── 按日缓存 ──

type cachedHolidayCalendar struct {
	inner  HolidayCalendar
	cache  HolidayCache
	ttl    time.Duration
	loc    *time.Location
	logger *zap.Logger
}

// NewCachedHolidayCalendar 为节假日查询加上按日缓存
func NewCachedHolidayCalendar(inner HolidayCalendar, cache HolidayCache, ttl time.Duration, loc *time.Location, logger *zap.Logger) HolidayCalendar {
	return &cachedHolidayCalendar{inner: inner, cache: cache, ttl: ttl, loc: loc, logger: logger}
}

func (c *cachedHolidayCalendar) IsPublicHoliday(ctx context.Context, date time.Time) (bool, error) {
	key := date.In(c.loc).Format("2006-01-02")

	v, found, err := c.cache.GetHoliday(ctx, key)
	if err != nil {
		c.logger.Warn("读取节假日缓存失败", zap.String("date", key), zap.Error(err))
	} else if found {
		return v, nil
	}

	v, err = c.inner.IsPublicHoliday(ctx, date)
	if err != nil {
		return false, err
	}
	if err := c.cache.SetHoliday(ctx, key, v, c.ttl); err != nil {
		c.logger.Warn("写入节假日缓存失败", zap.String("date", key), zap.Error(err))
	}
	return v, nil
}

// memoryHolidayCache 进程内 TTL 缓存，未配置 Redis 时使用
type memoryHolidayCache struct {
	mu      sync.Mutex
	entries map[string]memoryHolidayEntry
	now     func() time.Time
}

type memoryHolidayEntry struct {
	value     bool
	expiresAt time.Time
}

// NewMemoryHolidayCache 创建进程内节假日缓存
func NewMemoryHolidayCache() HolidayCache {
	return &memoryHolidayCache{entries: make(map[string]memoryHolidayEntry), now: time.Now}
}

func (m *memoryHolidayCache) GetHoliday(_ context.Context, date string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[date]
	if !ok {
		return false, false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, date)
		return false, false, nil
	}
	return e.value, true, nil
}

func (m *memoryHolidayCache) SetHoliday(_ context.Context, date string, isHoliday bool, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[date] = memoryHolidayEntry{value: isHoliday, expiresAt: m.now().Add(ttl)}
	return nil
}
