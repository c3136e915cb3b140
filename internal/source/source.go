package source

import (
	"context"
	"fmt"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/logger"
	"relaymirror/pkg/models"
)

// HandlerFunc processes one source event. A returned error engages the
// source's retry and poison-message handling.
type HandlerFunc func(ctx context.Context, envelope models.EventEnvelope) error

// Source is a stream of source-platform events feeding the ingestion loop.
type Source interface {
	Consume(ctx context.Context, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

func New(cfg config.SourceConfig, log logger.Logger) (Source, error) {
	switch cfg.Type {
	case constants.SourceTypeKafka:
		return NewKafkaSource(cfg.Kafka, log), nil
	case constants.SourceTypeChannel:
		return NewChannelSource(cfg.Channel.Buffer, log), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
