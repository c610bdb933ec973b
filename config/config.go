package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug / info / warn / error
	Format string `mapstructure:"format"` // json / text
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CacheConfig 授权记录本地缓存
type CacheConfig struct {
	Size                int    `mapstructure:"size"`
	TTLSeconds          int    `mapstructure:"ttl_seconds"`
	InvalidationChannel string `mapstructure:"invalidation_channel"`
}

type QueueConfig struct {
	RenewalQueue string `mapstructure:"renewal_queue"`
	MaxWorkers   int    `mapstructure:"max_workers"`
}

// SchedulerConfig cron 表达式，支持 @every 语法
type SchedulerConfig struct {
	ExpireSpec  string `mapstructure:"expire_spec"`
	RenewSpec   string `mapstructure:"renew_spec"`
	OverdueSpec string `mapstructure:"overdue_spec"`
}

type SubscriptionConfig struct {
	RefundPolicyDays      int     `mapstructure:"refund_policy_days"`
	LoyaltyDiscountPct    float64 `mapstructure:"loyalty_discount_pct"`
	MaxRenewalDiscountPct float64 `mapstructure:"max_renewal_discount_pct"`
	DefaultTrialDays      int     `mapstructure:"default_trial_days"`
	BillingDueDays        int     `mapstructure:"billing_due_days"`
	MaxRetries            int     `mapstructure:"max_retries"`
	RenewalLeadHours      int     `mapstructure:"renewal_lead_hours"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("cache.size", 4096)
	v.SetDefault("cache.ttl_seconds", 60)
	v.SetDefault("cache.invalidation_channel", "entitlement_invalidations")
	v.SetDefault("queue.renewal_queue", "subscription_renewals")
	v.SetDefault("queue.max_workers", 2)
	v.SetDefault("scheduler.expire_spec", "@every 5m")
	v.SetDefault("scheduler.renew_spec", "@every 15m")
	v.SetDefault("scheduler.overdue_spec", "@hourly")
	v.SetDefault("subscription.refund_policy_days", 30)
	v.SetDefault("subscription.loyalty_discount_pct", 5)
	v.SetDefault("subscription.max_renewal_discount_pct", 50)
	v.SetDefault("subscription.default_trial_days", 14)
	v.SetDefault("subscription.billing_due_days", 7)
	v.SetDefault("subscription.max_retries", 3)
	v.SetDefault("subscription.renewal_lead_hours", 24)
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// maxRenewalDiscountPct 续费累计折扣的硬上限
const maxRenewalDiscountPct = 50

func (c *Config) validate() error {
	s := c.Subscription
	if s.MaxRenewalDiscountPct < 0 || s.MaxRenewalDiscountPct > maxRenewalDiscountPct {
		return fmt.Errorf("subscription.max_renewal_discount_pct must be within [0, %d], got %v",
			maxRenewalDiscountPct, s.MaxRenewalDiscountPct)
	}
	if s.LoyaltyDiscountPct < 0 {
		return fmt.Errorf("subscription.loyalty_discount_pct must not be negative, got %v", s.LoyaltyDiscountPct)
	}
	return nil
}

// Default 只包含默认值的配置，测试与 sweep 工具使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
