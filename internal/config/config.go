package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is loaded once at process start and never re-read.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Business  BusinessConfig  `mapstructure:"business"`
	Log       LogConfig       `mapstructure:"log"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type ServerConfig struct {
	Port     int `mapstructure:"port"`
	WorkerID int `mapstructure:"worker_id"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	DSN          string `mapstructure:"dsn"` // overrides the fields above when set
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	GroupID string           `mapstructure:"group_id"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CommissionJob        string `mapstructure:"commission_job"`
	CommissionDeadLetter string `mapstructure:"commission_dead_letter"`
	PayoutRequest        string `mapstructure:"payout_request"`
}

type BusinessConfig struct {
	Tier1Rate         string `mapstructure:"tier1_rate"`
	Tier2Rate         string `mapstructure:"tier2_rate"`
	MinWithdrawal     int64  `mapstructure:"min_withdrawal"`
	MaxRetryCount     int    `mapstructure:"max_retry_count"`
	RetryBackoffMs    int    `mapstructure:"retry_backoff_ms"`
	JobTimeoutSeconds int    `mapstructure:"job_timeout_seconds"`
	SweepDelayMinutes int    `mapstructure:"sweep_delay_minutes"`
	LockTTLSeconds    int    `mapstructure:"lock_ttl_seconds"`
}

func (b BusinessConfig) RetryBackoff() time.Duration {
	return time.Duration(b.RetryBackoffMs) * time.Millisecond
}

func (b BusinessConfig) JobTimeout() time.Duration {
	return time.Duration(b.JobTimeoutSeconds) * time.Second
}

func (b BusinessConfig) SweepDelay() time.Duration {
	return time.Duration(b.SweepDelayMinutes) * time.Minute
}

func (b BusinessConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSeconds) * time.Second
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Production bool   `mapstructure:"production"`
}

type ReconcileConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.name", "commission_ledger")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.group_id", "commission-ledger")
	v.SetDefault("kafka.topic.commission_job", "commission_job")
	v.SetDefault("kafka.topic.commission_dead_letter", "commission_job_dead_letter")
	v.SetDefault("kafka.topic.payout_request", "payout_request")

	v.SetDefault("business.tier1_rate", "0.10")
	v.SetDefault("business.tier2_rate", "0.05")
	v.SetDefault("business.min_withdrawal", 100000)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.retry_backoff_ms", 200)
	v.SetDefault("business.job_timeout_seconds", 30)
	v.SetDefault("business.sweep_delay_minutes", 10)
	v.SetDefault("business.lock_ttl_seconds", 60)

	v.SetDefault("log.level", "info")

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.schedule", "0 30 3 * * *")
	v.SetDefault("reconcile.batch_size", 200)
}

// LoadConfig reads the YAML file at configPath, overlays .env and LEDGER_* environment
// variables, and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Business.MinWithdrawal <= 0 {
		return errors.New("business.min_withdrawal must be positive")
	}
	if c.Business.MaxRetryCount < 1 {
		return errors.New("business.max_retry_count must be at least 1")
	}
	if c.Business.JobTimeoutSeconds <= 0 {
		return errors.New("business.job_timeout_seconds must be positive")
	}
	if c.Business.Tier1Rate == "" || c.Business.Tier2Rate == "" {
		return errors.New("business tier rates are required")
	}
	return nil
}
