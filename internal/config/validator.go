package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateSource(cfg.Source); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateDelivery(cfg.Delivery); err != nil {
		errors = append(errors, err)
	}

	if err := validateWebhook(cfg.Webhook); err != nil {
		errors = append(errors, err)
	}

	if err := validateMediaStore(cfg.MediaStore); err != nil {
		errors = append(errors, err)
	}

	if err := validateDeadLetter(cfg.DeadLetter); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateSource(cfg SourceConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "source.type",
			Message: "source type is required",
		}
	}

	switch cfg.Type {
	case "kafka":
		return validateKafka(cfg.Kafka)
	case "channel":
		if cfg.Channel.Buffer < 0 {
			return &ValidationError{
				Field:   "source.channel.buffer",
				Message: "buffer must be non-negative",
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "source.type",
			Message: fmt.Sprintf("unknown source type: %s (supported: kafka, channel)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "source.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("source.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "source.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "source.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.InitialInterval < 0 {
		return &ValidationError{
			Field:   "source.kafka.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "source.kafka.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "source.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "source.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	switch cfg.Engine {
	case "", "sqlite":
		return nil
	case "postgres":
		return validatePostgres(cfg.Postgres)
	default:
		return &ValidationError{
			Field:   "database.engine",
			Message: fmt.Sprintf("unknown database engine: %s (supported: sqlite, postgres)", cfg.Engine),
		}
	}
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateDelivery(cfg DeliveryConfig) error {
	if cfg.Workers <= 0 {
		return &ValidationError{
			Field:   "delivery.workers",
			Message: "workers must be positive",
		}
	}

	if cfg.QueueSize <= 0 {
		return &ValidationError{
			Field:   "delivery.queue_size",
			Message: "queue_size must be positive",
		}
	}

	if cfg.MaxAttempts <= 0 {
		return &ValidationError{
			Field:   "delivery.max_attempts",
			Message: "max_attempts must be positive",
		}
	}

	if cfg.InitialDelay <= 0 {
		return &ValidationError{
			Field:   "delivery.initial_delay",
			Message: "initial_delay must be positive",
		}
	}

	if cfg.MaxDelay < cfg.InitialDelay {
		return &ValidationError{
			Field:   "delivery.max_delay",
			Message: "max_delay must be greater than or equal to initial_delay",
		}
	}

	if cfg.SendTimeout <= 0 {
		return &ValidationError{
			Field:   "delivery.send_timeout",
			Message: "send_timeout must be positive",
		}
	}

	if cfg.Breaker.Threshold == 0 {
		return &ValidationError{
			Field:   "delivery.breaker.threshold",
			Message: "breaker threshold must be positive",
		}
	}

	if cfg.Breaker.RecoveryTimeout <= 0 {
		return &ValidationError{
			Field:   "delivery.breaker.recovery_timeout",
			Message: "breaker recovery_timeout must be positive",
		}
	}

	if cfg.Rate.RPS <= 0 {
		return &ValidationError{
			Field:   "delivery.rate.rps",
			Message: "rate rps must be positive",
		}
	}

	if cfg.Rate.Burst <= 0 {
		return &ValidationError{
			Field:   "delivery.rate.burst",
			Message: "rate burst must be positive",
		}
	}

	return nil
}

func validateWebhook(cfg WebhookConfig) error {
	if cfg.URLPrefix == "" {
		return &ValidationError{
			Field:   "webhook.url_prefix",
			Message: "webhook url_prefix is required",
		}
	}

	if !strings.HasPrefix(cfg.URLPrefix, "https://") {
		return &ValidationError{
			Field:   "webhook.url_prefix",
			Message: "webhook url_prefix must start with https://",
		}
	}

	if cfg.ProbeTimeout <= 0 {
		return &ValidationError{
			Field:   "webhook.probe_timeout",
			Message: "probe_timeout must be positive",
		}
	}

	return nil
}

func validateMediaStore(cfg MediaStoreConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Bucket == "" {
		return &ValidationError{
			Field:   "mediastore.bucket",
			Message: "bucket is required when media store is enabled",
		}
	}

	if cfg.Region == "" {
		return &ValidationError{
			Field:   "mediastore.region",
			Message: "region is required when media store is enabled",
		}
	}

	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return &ValidationError{
			Field:   "mediastore.access_key",
			Message: "access_key and secret_key are required when media store is enabled",
		}
	}

	return nil
}

func validateDeadLetter(cfg DeadLetterConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.URL == "" {
		return &ValidationError{
			Field:   "deadletter.url",
			Message: "url is required when dead letter is enabled",
		}
	}

	if !strings.HasPrefix(cfg.URL, "amqp://") && !strings.HasPrefix(cfg.URL, "amqps://") {
		return &ValidationError{
			Field:   "deadletter.url",
			Message: "url must start with amqp:// or amqps://",
		}
	}

	if cfg.Queue == "" {
		return &ValidationError{
			Field:   "deadletter.queue",
			Message: "queue is required when dead letter is enabled",
		}
	}

	return nil
}
