package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务全量配置，来源：configs/config.yaml + ATTR_ 前缀环境变量覆盖
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Mode string `mapstructure:"mode"` // debug / release
	Port int    `mapstructure:"port"`
}

// DatabaseConfig 主库连接配置
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig 共享缓存配置（锁 / 信号量 / 计数器共用）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrokerConfig HTTP 消息队列配置
type BrokerConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`          // 发布接口根地址
	Token           string        `mapstructure:"token"`             // Bearer 鉴权
	CallbackBaseURL string        `mapstructure:"callback_base_url"` // broker 回调本服务的外部地址
	Retries         int           `mapstructure:"retries"`           // broker 侧投递重试预算
	PublishTimeout  time.Duration `mapstructure:"publish_timeout"`
}

// AdminConfig 管理端鉴权配置
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	KeyHash   string `mapstructure:"key_hash"` // X-Admin-Key 的 bcrypt 哈希
}

// PipelineConfig 流水线调优参数
type PipelineConfig struct {
	SemaphoreLimit   int           `mapstructure:"semaphore_limit"`    // 每租户×渠道并发上限，0 关闭
	SemaphoreTTL     time.Duration `mapstructure:"semaphore_ttl"`      // 槽位自动过期时间
	DefaultDealValue float64       `mapstructure:"default_deal_value"` // 租户未配置成交价时的兜底值
	SweepBatchSize   int           `mapstructure:"sweep_batch_size"`
	SweepRatePerSec  float64       `mapstructure:"sweep_rate_per_sec"` // 回灌限速
	SweepLockTTL     time.Duration `mapstructure:"sweep_lock_ttl"`
	ReportTimeout    time.Duration `mapstructure:"report_timeout"` // 报表查询超时
}

// SentryConfig 异常上报
type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// TracingConfig OTLP 上报地址，留空关闭
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// Load 读取配置文件并应用环境变量覆盖（如 ATTR_REDIS_ADDR）
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ATTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 允许纯环境变量运行（容器场景）
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("broker.retries", 3)
	v.SetDefault("broker.publish_timeout", 5*time.Second)
	v.SetDefault("pipeline.semaphore_limit", 20)
	v.SetDefault("pipeline.semaphore_ttl", 30*time.Second)
	v.SetDefault("pipeline.default_deal_value", 1000)
	v.SetDefault("pipeline.sweep_batch_size", 100)
	v.SetDefault("pipeline.sweep_rate_per_sec", 10)
	v.SetDefault("pipeline.sweep_lock_ttl", 5*time.Minute)
	v.SetDefault("pipeline.report_timeout", 10*time.Second)
}
