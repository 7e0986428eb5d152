package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
	Auth     AuthConfig     `json:"auth"`
	Booking  BookingConfig  `json:"booking"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// RedisConfig Redis配置（幂等键缓存；可选，连不上时仅降级不报错）
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// AuthConfig 后台鉴权配置（HS256 JWT + 角色）
type AuthConfig struct {
	Enabled       bool   `json:"enabled"`
	JWTSecret     string `json:"jwt_secret"`
	Issuer        string `json:"issuer"`
	Audience      string `json:"audience"`
	AdminUsername string `json:"admin_username"` // 运营后台账号（开发环境配置文件下发）
	AdminPassword string `json:"admin_password"`
}

// BookingConfig 预订引擎配置
type BookingConfig struct {
	MaxRangeDays          int   `json:"max_range_days"`          // 单次预订最大天数
	ProvisionalTTLMinutes int   `json:"provisional_ttl_minutes"` // provisional 超时时间
	SweepIntervalSeconds  int   `json:"sweep_interval_seconds"`  // 过期清理周期
	QuoteEpsilonCents     int64 `json:"quote_epsilon_cents"`     // 客户端报价允许偏差
	RateLimitPerSecond    int64 `json:"rate_limit_per_second"`   // 预订接口限流速率
	RateLimitBurst        int64 `json:"rate_limit_burst"`        // 预订接口限流桶容量
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
		globalConfig.fillDefaults()
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// fillDefaults 对未配置的预订参数补默认值（0 值均不可用）。
func (c *Config) fillDefaults() {
	if c.Booking.MaxRangeDays <= 0 {
		c.Booking.MaxRangeDays = 90
	}
	if c.Booking.ProvisionalTTLMinutes <= 0 {
		c.Booking.ProvisionalTTLMinutes = 30
	}
	if c.Booking.SweepIntervalSeconds <= 0 {
		c.Booking.SweepIntervalSeconds = 60
	}
	if c.Booking.QuoteEpsilonCents <= 0 {
		c.Booking.QuoteEpsilonCents = 100
	}
	if c.Booking.RateLimitPerSecond <= 0 {
		c.Booking.RateLimitPerSecond = 10
	}
	if c.Booking.RateLimitBurst <= 0 {
		c.Booking.RateLimitBurst = 20
	}
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Name:     "booking-service",
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "aureadrive",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "localhost:6831",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
		Auth: AuthConfig{
			Enabled:       false,
			Issuer:        "aureadrive",
			Audience:      "aureadrive",
			AdminUsername: "admin",
			AdminPassword: "admin",
		},
	}
	cfg.fillDefaults()
	return cfg
}
