package source

import (
	"context"
	"sync"

	"relaymirror/internal/logger"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/logging"
	"relaymirror/pkg/models"
)

// ChannelSource is an in-process source backed by a Go channel. It serves
// tests and embedded setups where the host program produces events
// directly instead of going through a broker.
type ChannelSource struct {
	events      chan models.EventEnvelope
	done        chan struct{}
	closeOnce   sync.Once
	logger      logger.Logger
	serviceName string
}

func NewChannelSource(buffer int, log logger.Logger) *ChannelSource {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSource{
		events:      make(chan models.EventEnvelope, buffer),
		done:        make(chan struct{}),
		logger:      log,
		serviceName: "unknown",
	}
}

func (s *ChannelSource) SetServiceName(name string) {
	s.serviceName = name
}

// Publish feeds one event into the stream. It blocks while the buffer is
// full and fails once the source is closed.
func (s *ChannelSource) Publish(ctx context.Context, envelope models.EventEnvelope) error {
	select {
	case <-s.done:
		return pkgerrors.ErrSourceExhausted
	default:
	}

	select {
	case s.events <- envelope:
		return nil
	case <-s.done:
		return pkgerrors.ErrSourceExhausted
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSource) Consume(ctx context.Context, handler HandlerFunc) error {
	consumeCtx := logging.WithServiceName(ctx, s.serviceName)
	s.logger.InfowCtx(consumeCtx, "Started consuming",
		"source", "channel",
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			s.logger.InfowCtx(consumeCtx, "Stopped consuming",
				"source", "channel",
				"reason", "source closed",
			)
			return nil
		case envelope := <-s.events:
			msgCtx := logging.WithMessageID(consumeCtx, envelope.ID)
			if envelope.Metadata.TraceID != "" {
				msgCtx = logging.WithTraceID(msgCtx, envelope.Metadata.TraceID)
			}
			if err := handler(msgCtx, envelope); err != nil {
				s.logger.ErrorwCtx(msgCtx, "Failed to process source event",
					"error", err,
				)
			}
		}
	}
}

func (s *ChannelSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}
