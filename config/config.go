package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration, loaded from logwarden.yaml
// and LOGWARDEN_* environment variables.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Suppression SuppressionConfig `mapstructure:"suppression"`
	Redis       RedisConfig       `mapstructure:"redis"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Export      ExportConfig      `mapstructure:"export"`
	LogLevel    string            `mapstructure:"log_level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string  `mapstructure:"host"`
	Port         int     `mapstructure:"port"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	RateBurst    int     `mapstructure:"rate_burst"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig configures persistence paths.
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// PipelineConfig sizes the background evaluation pool.
type PipelineConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// SuppressionConfig configures alert deduplication. Backend is "memory" for
// single-instance deployments or "redis" when several instances must share
// one suppression window.
type SuppressionConfig struct {
	Backend       string `mapstructure:"backend"`
	WindowSeconds int    `mapstructure:"window_seconds"`
	MaxEntries    int    `mapstructure:"max_entries"`
}

// Window returns the suppression window as a duration.
func (s SuppressionConfig) Window() time.Duration {
	return time.Duration(s.WindowSeconds) * time.Second
}

// RedisConfig configures the shared suppression backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SMTPConfig configures outbound alert email. Email dispatch fails per-alert
// when Host is empty.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// ExportConfig bounds log exports.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 50.0)
	v.SetDefault("server.rate_burst", 100)

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.sqlite_path", "./data/logwarden.db")

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 1024)

	v.SetDefault("suppression.backend", "memory")
	v.SetDefault("suppression.window_seconds", 60)
	v.SetDefault("suppression.max_entries", 10000)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "alerts@localhost")

	v.SetDefault("export.max_rows", 10000)

	v.SetDefault("log_level", "info")
}

// Load reads configuration from the named file (optional) and the
// environment. Environment variables use the LOGWARDEN_ prefix with
// underscores, e.g. LOGWARDEN_SERVER_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LOGWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("logwarden")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/logwarden")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that defaults alone cannot
// guarantee once overridden.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline.queue_size must be positive, got %d", c.Pipeline.QueueSize)
	}
	if c.Suppression.WindowSeconds <= 0 {
		return fmt.Errorf("suppression.window_seconds must be positive, got %d", c.Suppression.WindowSeconds)
	}
	switch c.Suppression.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("suppression.backend must be memory or redis, got %q", c.Suppression.Backend)
	}
	if c.Suppression.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when suppression.backend is redis")
	}
	return nil
}
