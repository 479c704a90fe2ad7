// Package config loads service settings from a YAML file overlaid with
// environment variables, and validates camera entries one by one.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultHTTPAddr     = ":8080"
	DefaultTickInterval = 30 * time.Millisecond
	DefaultFrameWidth   = 640
	DefaultFrameHeight  = 480
	DefaultCooldown     = 2 * time.Second
	DefaultAlertLogSize = 200
	DefaultDatabasePath = "tripwatch.db"
	DefaultSnapshotDir  = "snapshots"
	DefaultKafkaTopic   = "tripwatch.alerts"
	DefaultMinioBucket  = "snapshots"
)

// Config is the full service configuration.
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"log"`

	Engine struct {
		TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
		FrameWidth   int           `yaml:"frame_width" env:"FRAME_WIDTH"`
		FrameHeight  int           `yaml:"frame_height" env:"FRAME_HEIGHT"`
		Cooldown     time.Duration `yaml:"cooldown" env:"ALERT_COOLDOWN"`
		AlertLogSize int           `yaml:"alert_log_size" env:"ALERT_LOG_SIZE"`
	} `yaml:"engine"`

	Storage struct {
		DatabasePath string `yaml:"database_path" env:"DATABASE_PATH"`
		SnapshotDir  string `yaml:"snapshot_dir" env:"SNAPSHOT_DIR"`
	} `yaml:"storage"`

	Minio struct {
		Enabled   bool   `yaml:"enabled" env:"MINIO_ENABLED"`
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
		Secure    bool   `yaml:"secure" env:"MINIO_SECURE"`
	} `yaml:"minio"`

	Kafka struct {
		Enabled bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
		Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		Topic   string   `yaml:"topic" env:"KAFKA_ALERT_TOPIC"`
	} `yaml:"kafka"`

	Telegram struct {
		Enabled         bool   `yaml:"enabled" env:"TELEGRAM_ENABLED"`
		BotToken        string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
		ChatID          string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
		CooldownSeconds int    `yaml:"cooldown_seconds" env:"TELEGRAM_COOLDOWN_SECONDS"`
	} `yaml:"telegram"`

	Auth struct {
		Enabled     bool          `yaml:"enabled" env:"AUTH_ENABLED"`
		Username    string        `yaml:"username" env:"AUTH_USERNAME"`
		Password    string        `yaml:"password" env:"AUTH_PASSWORD"`
		JWTSecret   string        `yaml:"jwt_secret" env:"JWT_SECRET"`
		TokenExpiry time.Duration `yaml:"token_expiry" env:"JWT_EXPIRY"`
	} `yaml:"auth"`

	Cameras []CameraEntry `yaml:"cameras"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Engine.TickInterval <= 0 {
		c.Engine.TickInterval = DefaultTickInterval
	}
	if c.Engine.FrameWidth <= 0 {
		c.Engine.FrameWidth = DefaultFrameWidth
	}
	if c.Engine.FrameHeight <= 0 {
		c.Engine.FrameHeight = DefaultFrameHeight
	}
	if c.Engine.Cooldown <= 0 {
		c.Engine.Cooldown = DefaultCooldown
	}
	if c.Engine.AlertLogSize <= 0 {
		c.Engine.AlertLogSize = DefaultAlertLogSize
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = DefaultDatabasePath
	}
	if c.Storage.SnapshotDir == "" {
		c.Storage.SnapshotDir = DefaultSnapshotDir
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = DefaultKafkaTopic
	}
	if c.Minio.Bucket == "" {
		c.Minio.Bucket = DefaultMinioBucket
	}
	if c.Auth.Username == "" {
		c.Auth.Username = "admin"
	}
	if c.Auth.TokenExpiry <= 0 {
		c.Auth.TokenExpiry = 24 * time.Hour
	}
}

// Validate checks the service-level settings. Camera entries are checked
// separately by CameraConfigs so a bad entry never blocks the others.
func (c *Config) Validate() error {
	var errs []error
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka: brokers required when enabled"))
	}
	if c.Minio.Enabled && c.Minio.Endpoint == "" {
		errs = append(errs, errors.New("minio: endpoint required when enabled"))
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("telegram: bot token and chat id required when enabled"))
	}
	if c.Auth.Enabled && c.Auth.Password == "" {
		errs = append(errs, errors.New("auth: password required when enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// CameraConfigs validates the configured camera entries.
func (c *Config) CameraConfigs() ([]Camera, []error) {
	return ParseCameras(c.Cameras)
}
