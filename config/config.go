package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Clocking ClockingConfig `mapstructure:"clocking"`
	Holiday  HolidayConfig  `mapstructure:"holiday"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string      `mapstructure:"allow_origins"`
	AllowHeaders []string      `mapstructure:"allow_headers"`
	MaxAge       time.Duration `mapstructure:"max_age"` // 预检结果缓存时长
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 分钟
}

// DSN 生成 PostgreSQL 连接字符串
// 会话时区与打卡时区保持一致，保证 date 列按门店本地日期读写
func (c *DatabaseConfig) DSN(timezone string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, timezone,
	)
}

// RedisConfig Redis 缓存配置（Addr 为空时不启用）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig Bearer Token 校验配置（Token 由外部认证服务签发）
type AuthConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	Issuer     string `mapstructure:"issuer"`
	SweepToken string `mapstructure:"sweep_token"` // 调度器调用批处理接口的静态令牌，为空时不开放
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ClockingConfig 打卡与排班规则
type ClockingConfig struct {
	Timezone                  string        `mapstructure:"timezone"`
	RoundingIntervalMins      int           `mapstructure:"rounding_interval_mins"`
	MinGapBetweenShiftsMins   int           `mapstructure:"min_gap_between_shifts_mins"`
	MinClockOutGapMins        int           `mapstructure:"min_clock_out_gap_mins"`
	MinShiftLengthMins        int           `mapstructure:"min_shift_length_mins"`
	ConflictGapMins           int           `mapstructure:"conflict_gap_mins"`
	EditTolerance             time.Duration `mapstructure:"edit_tolerance"`
	ActivityDeleteWindowHours int           `mapstructure:"activity_delete_window_hours"`
	RotationEpoch             string        `mapstructure:"rotation_epoch"` // YYYY-MM-DD，必须为周一
	RotationWeeks             int           `mapstructure:"rotation_weeks"`
}

// Location 解析打卡时区
func (c *ClockingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// HolidayConfig 法定节假日日历配置
type HolidayConfig struct {
	ICSSource string        `mapstructure:"ics_source"` // URL 或本地文件路径，为空时视为无节假日
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.cors.allow_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("server.cors.max_age", "12h")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "clock_in_system")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "clock-in-system")
	v.SetDefault("auth.sweep_token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("clocking.timezone", "Australia/Perth")
	v.SetDefault("clocking.rounding_interval_mins", 15)
	v.SetDefault("clocking.min_gap_between_shifts_mins", 30)
	v.SetDefault("clocking.min_clock_out_gap_mins", 15)
	v.SetDefault("clocking.min_shift_length_mins", 15)
	v.SetDefault("clocking.conflict_gap_mins", 30)
	v.SetDefault("clocking.edit_tolerance", "15s")
	v.SetDefault("clocking.activity_delete_window_hours", 168)
	v.SetDefault("clocking.rotation_epoch", "2024-01-01")
	v.SetDefault("clocking.rotation_weeks", 4)

	v.SetDefault("holiday.ics_source", "")
	v.SetDefault("holiday.cache_ttl", "24h")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("CLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	return c.Clocking.Validate()
}

// Validate 校验打卡规则
func (c *ClockingConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("配置校验失败: clocking.timezone 无效: %w", err)
	}
	if c.RoundingIntervalMins <= 0 || 1440%c.RoundingIntervalMins != 0 {
		return fmt.Errorf("配置校验失败: clocking.rounding_interval_mins 必须整除 1440")
	}
	if c.MinGapBetweenShiftsMins < 0 || c.MinClockOutGapMins < 0 || c.ConflictGapMins < 0 {
		return fmt.Errorf("配置校验失败: 间隔分钟数不能为负")
	}
	if c.MinShiftLengthMins <= 0 {
		return fmt.Errorf("配置校验失败: clocking.min_shift_length_mins 必须大于 0")
	}
	if c.RotationWeeks <= 0 {
		return fmt.Errorf("配置校验失败: clocking.rotation_weeks 必须大于 0")
	}
	epoch, err := time.Parse("2006-01-02", c.RotationEpoch)
	if err != nil {
		return fmt.Errorf("配置校验失败: clocking.rotation_epoch 格式应为 YYYY-MM-DD")
	}
	if epoch.Weekday() != time.Monday {
		return fmt.Errorf("配置校验失败: clocking.rotation_epoch 必须为周一")
	}
	return nil
}
