package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Source     SourceConfig
	Logging    LoggingConfig
	Store      StoreConfig
	Ingest     IngestConfig
	Delivery   DeliveryConfig
	Transform  TransformConfig
	Webhook    WebhookConfig
	MediaStore MediaStoreConfig
	DeadLetter DeadLetterConfig
	Tracing    TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Engine   string         `mapstructure:"engine"` // "sqlite" (default) or "postgres"
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type SourceConfig struct {
	Type    string        `mapstructure:"type"` // "kafka" or "channel"
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Channel ChannelConfig `mapstructure:"channel"`
}

type KafkaConfig struct {
	Brokers    []string    `mapstructure:"brokers"`
	GroupID    string      `mapstructure:"group_id"`
	InputTopic string      `mapstructure:"input_topic"`
	DLQTopic   string      `mapstructure:"dlq_topic"`
	Retry      RetryConfig `mapstructure:"retry"`
}

type ChannelConfig struct {
	Buffer int `mapstructure:"buffer"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Reload ReloadConfig `mapstructure:"reload"`
}

type ReloadConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

type IngestConfig struct {
	DedupWindow int `mapstructure:"dedup_window"`
}

type DeliveryConfig struct {
	Workers       int            `mapstructure:"workers"`
	QueueSize     int            `mapstructure:"queue_size"`
	MaxAttempts   int            `mapstructure:"max_attempts"`
	InitialDelay  time.Duration  `mapstructure:"initial_delay"`
	MaxDelay      time.Duration  `mapstructure:"max_delay"`
	SendTimeout   time.Duration  `mapstructure:"send_timeout"`
	DrainGrace    time.Duration  `mapstructure:"drain_grace"`
	Breaker       BreakerConfig  `mapstructure:"breaker"`
	Rate          DestRateConfig `mapstructure:"rate"`
}

type BreakerConfig struct {
	Threshold       uint32        `mapstructure:"threshold"`
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout"`
}

// DestRateConfig paces outbound requests per destination.
type DestRateConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type TransformConfig struct {
	FontPath     string `mapstructure:"font_path"`
	FFmpegPath   string `mapstructure:"ffmpeg_path"`
	DisableVideo bool   `mapstructure:"disable_video"`
}

type WebhookConfig struct {
	URLPrefix    string        `mapstructure:"url_prefix"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// MediaStoreConfig enables offloading oversized attachments to S3-compatible
// object storage; disabled, oversize stays a permanent delivery error.
type MediaStoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
	PublicURL string `mapstructure:"public_url"`
}

type DeadLetterConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Queue   string `mapstructure:"queue"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
