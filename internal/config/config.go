package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Attendance AttendanceConfig `mapstructure:"attendance"`
	Game       GameConfig       `mapstructure:"game"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WorkerID        int64         `mapstructure:"worker_id"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	SQLLevel string `mapstructure:"sql_level"`
}

// DatabaseConfig 数据库配置，Driver 取值 mysql / postgres / sqlite
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"sslmode"`
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	UserLock bool   `mapstructure:"user_lock"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Ledger string `mapstructure:"ledger"`
}

type LedgerConfig struct {
	InitialBalance int64         `mapstructure:"initial_balance"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	PaymentMethods []string      `mapstructure:"payment_methods"`
}

type AttendanceConfig struct {
	Reward   int64  `mapstructure:"reward"`
	Timezone string `mapstructure:"timezone"`
}

type GameConfig struct {
	Odds map[string]OddsConfig `mapstructure:"odds"`
}

type OddsConfig struct {
	SuccessRate float64 `mapstructure:"success_rate"`
	Odds        float64 `mapstructure:"odds"`
}

type JobsConfig struct {
	OutboxInterval    time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize   int           `mapstructure:"outbox_batch_size"`
	OutboxMaxRetry    int           `mapstructure:"outbox_max_retry"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileWindow   time.Duration `mapstructure:"reconcile_window"`
	ReconcileBatch    int           `mapstructure:"reconcile_batch"`
}

// Load 加载配置文件
//
// 优先级：环境变量 (FANPOINTS_*) > 配置文件 > 默认值。
// configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FANPOINTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 启动时校验配置，避免错误配置在运行中才暴露
func (c *Config) Validate() error {
	if c.Ledger.InitialBalance < 0 {
		return fmt.Errorf("ledger.initial_balance must be >= 0, got %d", c.Ledger.InitialBalance)
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("ledger.max_attempts must be >= 1, got %d", c.Ledger.MaxAttempts)
	}
	if c.Attendance.Reward <= 0 {
		return fmt.Errorf("attendance.reward must be > 0, got %d", c.Attendance.Reward)
	}
	if _, err := time.LoadLocation(c.Attendance.Timezone); err != nil {
		return fmt.Errorf("attendance.timezone: %w", err)
	}
	for name, o := range c.Game.Odds {
		if o.SuccessRate < 0 || o.SuccessRate > 1 {
			return fmt.Errorf("game.odds.%s.success_rate must be within [0,1], got %v", name, o.SuccessRate)
		}
		if o.Odds <= 0 {
			return fmt.Errorf("game.odds.%s.odds must be > 0, got %v", name, o.Odds)
		}
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q not supported", c.Database.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.sql_level", "warn")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.database", "fanpoints")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "fanpoints.db")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.ledger", "points.ledger")

	v.SetDefault("ledger.initial_balance", 3000)
	v.SetDefault("ledger.max_attempts", 5)
	v.SetDefault("ledger.retry_backoff", 10*time.Millisecond)
	v.SetDefault("ledger.payment_methods", []string{"card", "bank_transfer", "mobile"})

	v.SetDefault("attendance.reward", 100)
	v.SetDefault("attendance.timezone", "Asia/Seoul")

	v.SetDefault("game.odds", map[string]any{
		"safe":  map[string]any{"success_rate": 0.8, "odds": 1.2},
		"even":  map[string]any{"success_rate": 0.5, "odds": 2.0},
		"risky": map[string]any{"success_rate": 0.2, "odds": 5.0},
	})

	v.SetDefault("jobs.outbox_interval", 500*time.Millisecond)
	v.SetDefault("jobs.outbox_batch_size", 100)
	v.SetDefault("jobs.outbox_max_retry", 5)
	v.SetDefault("jobs.reconcile_interval", time.Minute)
	v.SetDefault("jobs.reconcile_window", 10*time.Minute)
	v.SetDefault("jobs.reconcile_batch", 200)
}
