package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/logger"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/logging"
	"relaymirror/pkg/metrics"
	"relaymirror/pkg/models"
	"relaymirror/pkg/retry"
	"relaymirror/pkg/tracing"
)

// KafkaSource consumes source-platform events from a Kafka topic. Events
// are committed after processing; events that exhaust the retry policy are
// handed to the DLQ topic when one is configured, then committed so the
// partition never wedges on a poison message.
type KafkaSource struct {
	cfg         config.KafkaConfig
	topic       string
	wg          sync.WaitGroup
	reader      *kafka.Reader
	dlqWriter   *kafka.Writer
	logger      logger.Logger
	serviceName string
}

func NewKafkaSource(cfg config.KafkaConfig, log logger.Logger) *KafkaSource {
	topic := cfg.InputTopic
	if topic == "" {
		topic = constants.DefaultInputTopic
	}

	s := &KafkaSource{
		cfg:         cfg,
		topic:       topic,
		logger:      log,
		serviceName: "unknown",
	}

	if cfg.DLQTopic != "" {
		s.dlqWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: constants.KafkaBatchTimeout,
			WriteTimeout: constants.KafkaWriteTimeout,
			Async:        false,
		}
	}

	return s
}

func (s *KafkaSource) SetServiceName(name string) {
	s.serviceName = name
}

func (s *KafkaSource) Consume(ctx context.Context, handler HandlerFunc) error {
	s.logger.Infow("Creating Kafka reader",
		"topic", s.topic,
		"brokers", s.cfg.Brokers,
		"group_id", s.cfg.GroupID,
		"service_name", s.serviceName,
	)

	s.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		GroupID:  s.cfg.GroupID,
		Topic:    s.topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, s.serviceName)
		s.logger.InfowCtx(consumeCtx, "Started consuming",
			"topic", s.topic,
		)

		for {
			fetchStart := time.Now()
			m, err := s.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					s.logger.InfowCtx(consumeCtx, "Stopped consuming",
						"topic", s.topic,
						"reason", "context canceled",
					)
					return
				}
				s.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
					"error", err,
					"topic", s.topic,
				)
				time.Sleep(time.Second)
				continue
			}
			metrics.IncKafkaMessagesRead(s.serviceName, s.topic)
			metrics.ObserveKafkaReadDuration(s.serviceName, s.topic, time.Since(fetchStart))
			metrics.ObserveKafkaMessageSize(s.serviceName, s.topic, "read", len(m.Value))

			var envelope models.EventEnvelope
			if err := json.Unmarshal(m.Value, &envelope); err != nil {
				s.logger.ErrorwCtx(consumeCtx, "Failed to unmarshal source event",
					"error", err,
					"topic", s.topic,
				)
				_ = s.reader.CommitMessages(ctx, m)
				continue
			}
			if err := models.ValidateEventEnvelope(&envelope); err != nil {
				s.logger.WarnwCtx(consumeCtx, "Discarding malformed source event",
					"error", err,
					"topic", s.topic,
				)
				_ = s.reader.CommitMessages(ctx, m)
				continue
			}

			msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "source.consume", m.Headers)
			if envelope.Metadata.TraceID != "" {
				msgCtx = logging.WithTraceID(msgCtx, envelope.Metadata.TraceID)
			}
			msgCtx = logging.WithMessageID(msgCtx, envelope.ID)
			msgCtx = logging.WithServiceName(msgCtx, s.serviceName)

			if err := s.processWithRetry(msgCtx, envelope, handler); err != nil {
				s.logger.ErrorwCtx(msgCtx, "Failed to process event after retries",
					"error", err,
					"topic", s.topic,
				)
				if s.dlqWriter != nil {
					if dlqErr := s.sendToDLQ(msgCtx, envelope, err); dlqErr != nil {
						s.logger.ErrorwCtx(msgCtx, "Failed to send event to DLQ",
							"error", dlqErr,
							"topic", s.topic,
						)
					}
				} else {
					s.logger.WarnwCtx(msgCtx, "No DLQ configured, committing event to avoid blocking",
						"topic", s.topic,
					)
				}
				_ = s.reader.CommitMessages(ctx, m)
			} else {
				if err := s.reader.CommitMessages(ctx, m); err != nil {
					s.logger.ErrorwCtx(msgCtx, "Failed to commit message",
						"error", err,
						"topic", s.topic,
					)
				}
			}
			span.End()
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (s *KafkaSource) Close() error {
	var err error
	if s.reader != nil {
		err = s.reader.Close()
	}
	if s.dlqWriter != nil {
		if closeErr := s.dlqWriter.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	s.wg.Wait()
	return err
}

func (s *KafkaSource) processWithRetry(ctx context.Context, envelope models.EventEnvelope, handler HandlerFunc) error {
	policy := retry.Policy{
		MaxAttempts:     constants.DefaultMaxAttempts,
		InitialInterval: constants.DefaultInitialDelay,
		MaxInterval:     constants.DefaultMaxDelay,
		Multiplier:      2.0,
	}
	if s.cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = s.cfg.Retry.MaxAttempts
	}
	if s.cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = s.cfg.Retry.InitialInterval
	}
	if s.cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = s.cfg.Retry.MaxInterval
	}
	if s.cfg.Retry.Multiplier > 0 {
		policy.Multiplier = s.cfg.Retry.Multiplier
	}
	if s.cfg.Retry.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = s.cfg.Retry.MaxElapsedTime
	}

	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = pkgerrors.RecoverPanic(r)
				s.logger.ErrorwCtx(ctx, "Panic recovered during event processing",
					"error", err,
					"topic", s.topic,
				)
			}
		}()
		return handler(ctx, envelope)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(s.serviceName, s.topic).Inc()
		s.logger.WarnwCtx(ctx, "Retrying event processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", s.topic,
		)
	})
}

func (s *KafkaSource) sendToDLQ(ctx context.Context, envelope models.EventEnvelope, originalErr error) error {
	if envelope.Metadata.Attributes == nil {
		envelope.Metadata.Attributes = make(map[string]string)
	}
	envelope.Metadata.Attributes["dlq_reason"] = originalErr.Error()
	envelope.Metadata.Attributes["dlq_source_topic"] = s.topic
	envelope.Metadata.Attributes["dlq_timestamp"] = time.Now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ event: %w", err)
	}

	headers := tracing.InjectTraceContext(ctx, []kafka.Header{})

	writeStart := time.Now()
	err = s.dlqWriter.WriteMessages(ctx, kafka.Message{
		Topic:   s.cfg.DLQTopic,
		Key:     []byte(envelope.ID),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write DLQ message: %w", err)
	}
	metrics.IncKafkaMessagesWritten(s.serviceName, s.cfg.DLQTopic)
	metrics.ObserveKafkaWriteDuration(s.serviceName, s.cfg.DLQTopic, time.Since(writeStart))
	metrics.DLQMessagesTotal.WithLabelValues(s.serviceName, s.topic, "max_retries_exceeded").Inc()

	s.logger.InfowCtx(ctx, "Event sent to DLQ",
		"source_topic", s.topic,
		"dlq_topic", s.cfg.DLQTopic,
		"reason", originalErr.Error(),
	)

	return nil
}
