package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"relaymirror/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("database.engine", constants.DatabaseEngineSQLite)
	viper.SetDefault("database.sqlite.path", "relaymirror.db")

	viper.SetDefault("source.type", constants.SourceTypeKafka)
	viper.SetDefault("source.kafka.input_topic", constants.DefaultInputTopic)
	viper.SetDefault("source.kafka.dlq_topic", constants.DefaultDeadLetterTopic)
	viper.SetDefault("source.channel.buffer", 256)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("store.reload.interval_seconds", 60)

	viper.SetDefault("ingest.dedup_window", constants.DedupWindowSize)

	viper.SetDefault("delivery.workers", constants.DefaultWorkerCount)
	viper.SetDefault("delivery.queue_size", constants.DefaultQueueSize)
	viper.SetDefault("delivery.max_attempts", constants.DefaultMaxAttempts)
	viper.SetDefault("delivery.initial_delay", constants.DefaultInitialDelay)
	viper.SetDefault("delivery.max_delay", constants.DefaultMaxDelay)
	viper.SetDefault("delivery.send_timeout", constants.WebhookSendTimeout)
	viper.SetDefault("delivery.drain_grace", constants.DrainGracePeriod)
	viper.SetDefault("delivery.breaker.threshold", constants.DefaultBreakerThreshold)
	viper.SetDefault("delivery.breaker.recovery_timeout", constants.DefaultBreakerRecovery)
	viper.SetDefault("delivery.rate.rps", constants.DefaultDestinationRate)
	viper.SetDefault("delivery.rate.burst", constants.DefaultDestinationBurst)

	viper.SetDefault("webhook.url_prefix", constants.WebhookURLPrefix)
	viper.SetDefault("webhook.probe_timeout", constants.WebhookProbeTimeout)

	viper.SetDefault("transform.ffmpeg_path", "ffmpeg")
}

func bindEnvVariables() {
	viper.BindEnv("source.kafka.brokers", "SOURCE_KAFKA_BROKERS")
	viper.BindEnv("source.kafka.group_id", "SOURCE_KAFKA_GROUP_ID")
	viper.BindEnv("source.kafka.input_topic", "SOURCE_KAFKA_INPUT_TOPIC")
	viper.BindEnv("source.kafka.dlq_topic", "SOURCE_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.engine", "DATABASE_ENGINE")
	viper.BindEnv("database.sqlite.path", "DATABASE_SQLITE_PATH")
	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("webhook.url_prefix", "WEBHOOK_URL_PREFIX")

	viper.BindEnv("mediastore.enabled", "MEDIASTORE_ENABLED")
	viper.BindEnv("mediastore.endpoint", "MEDIASTORE_ENDPOINT")
	viper.BindEnv("mediastore.region", "MEDIASTORE_REGION")
	viper.BindEnv("mediastore.bucket", "MEDIASTORE_BUCKET")
	viper.BindEnv("mediastore.access_key", "MEDIASTORE_ACCESS_KEY")
	viper.BindEnv("mediastore.secret_key", "MEDIASTORE_SECRET_KEY")

	viper.BindEnv("deadletter.enabled", "DEADLETTER_ENABLED")
	viper.BindEnv("deadletter.url", "DEADLETTER_URL")
	viper.BindEnv("deadletter.queue", "DEADLETTER_QUEUE")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("SOURCE_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Source.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}
