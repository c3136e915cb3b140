package source

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/logger"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/models"
)

func TestNew_Factory(t *testing.T) {
	tests := []struct {
		name       string
		sourceType string
		wantType   interface{}
		wantError  bool
	}{
		{name: "kafka", sourceType: constants.SourceTypeKafka, wantType: &KafkaSource{}},
		{name: "channel", sourceType: constants.SourceTypeChannel, wantType: &ChannelSource{}},
		{name: "unknown", sourceType: "carrier-pigeon", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(config.SourceConfig{Type: tt.sourceType}, logger.NopLogger())
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, src)
		})
	}
}

func TestChannelSource_DeliversEventsToHandler(t *testing.T) {
	src := NewChannelSource(4, logger.NopLogger())
	src.SetServiceName("replicator-test")

	received := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = src.Consume(ctx, func(ctx context.Context, envelope models.EventEnvelope) error {
			received <- envelope.ID
			return nil
		})
	}()

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		require.NoError(t, src.Publish(context.Background(), models.EventEnvelope{ID: id}))
	}

	for _, want := range []string{"evt-1", "evt-2", "evt-3"} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestChannelSource_HandlerErrorDoesNotStopConsuming(t *testing.T) {
	src := NewChannelSource(2, logger.NopLogger())

	received := make(chan string, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = src.Consume(ctx, func(ctx context.Context, envelope models.EventEnvelope) error {
			received <- envelope.ID
			if envelope.ID == "evt-bad" {
				return fmt.Errorf("handler exploded")
			}
			return nil
		})
	}()

	require.NoError(t, src.Publish(context.Background(), models.EventEnvelope{ID: "evt-bad"}))
	require.NoError(t, src.Publish(context.Background(), models.EventEnvelope{ID: "evt-good"}))

	for _, want := range []string{"evt-bad", "evt-good"} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestChannelSource_CloseStopsConsumeAndRejectsPublish(t *testing.T) {
	src := NewChannelSource(1, logger.NopLogger())

	done := make(chan error, 1)
	go func() {
		done <- src.Consume(context.Background(), func(context.Context, models.EventEnvelope) error {
			return nil
		})
	}()

	require.NoError(t, src.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consume did not stop after close")
	}

	err := src.Publish(context.Background(), models.EventEnvelope{ID: "evt-late"})
	assert.ErrorIs(t, err, pkgerrors.ErrSourceExhausted)

	// Closing twice must be safe.
	assert.NoError(t, src.Close())
}

func TestChannelSource_ConsumeStopsOnContextCancel(t *testing.T) {
	src := NewChannelSource(1, logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- src.Consume(ctx, func(context.Context, models.EventEnvelope) error {
			return nil
		})
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consume did not stop after cancel")
	}
}
