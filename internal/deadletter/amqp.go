package deadletter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/delivery"
	"relaymirror/internal/logger"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/metrics"
)

// Record is the document archived for a job that failed permanently.
type Record struct {
	JobID           string     `json:"job_id"`
	DestinationID   int64      `json:"destination_id"`
	SourceMessageID string     `json:"source_message_id"`
	ChatID          int64      `json:"chat_id"`
	Content         string     `json:"content,omitempty"`
	Media           *MediaInfo `json:"media,omitempty"`
	Reason          string     `json:"reason"`
	Attempts        int        `json:"attempts"`
	EnqueuedAt      time.Time  `json:"enqueued_at"`
	FailedAt        time.Time  `json:"failed_at"`
}

// MediaInfo describes a job's attachment; the bytes themselves are not
// archived.
type MediaInfo struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	Kind      string `json:"kind"`
	SizeBytes int    `json:"size_bytes"`
}

// AMQP publishes dead-lettered jobs to a durable RabbitMQ queue.
type AMQP struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  logger.Logger
}

func New(cfg config.DeadLetterConfig, log logger.Logger) (*AMQP, error) {
	queue := cfg.Queue
	if queue == "" {
		queue = constants.DefaultDeadLetterQueue
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, pkgerrors.ErrServiceUnavailable.WithCause(err).
			WithDetail("message", "dead letter broker unreachable")
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, pkgerrors.ErrServiceUnavailable.WithCause(err).
			WithDetail("message", "dead letter channel open failed")
	}

	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, pkgerrors.ErrServiceUnavailable.WithCause(err).
			WithDetail("message", "dead letter queue declare failed").
			WithDetail("queue", queue)
	}

	log.Infow("Dead letter queue ready", "queue", queue)

	return &AMQP{conn: conn, channel: channel, queue: queue, logger: log}, nil
}

// Publish archives the job. The channel is not safe for concurrent use, so
// publishes serialize here.
func (a *AMQP) Publish(ctx context.Context, job *delivery.Job, reason string) error {
	body, err := json.Marshal(newRecord(job, reason))
	if err != nil {
		metrics.IncDeadLetter("error")
		return pkgerrors.ErrInternal.WithCause(err).
			WithDetail("message", "dead letter encode failed")
	}

	a.mu.Lock()
	err = a.channel.PublishWithContext(ctx,
		"",      // default exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.ID,
			Timestamp:    time.Now(),
			Type:         reason,
			Body:         body,
		},
	)
	a.mu.Unlock()

	if err != nil {
		metrics.IncDeadLetter("error")
		return pkgerrors.ErrServiceUnavailable.WithCause(err).
			WithDetail("message", "dead letter publish failed").
			WithDetail("queue", a.queue)
	}

	metrics.IncDeadLetter("success")
	a.logger.InfowCtx(ctx, "Job dead-lettered",
		"job_id", job.ID,
		"destination_id", job.DestinationID,
		"reason", reason,
	)
	return nil
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.channel.Close(); err != nil {
		a.conn.Close()
		return err
	}
	return a.conn.Close()
}

func newRecord(job *delivery.Job, reason string) Record {
	rec := Record{
		JobID:           job.ID,
		DestinationID:   job.DestinationID,
		SourceMessageID: job.SourceMessageID,
		ChatID:          job.ChatID,
		Content:         job.Content,
		Reason:          reason,
		Attempts:        job.Attempt,
		EnqueuedAt:      job.EnqueuedAt,
		FailedAt:        time.Now().UTC(),
	}
	if job.Media != nil {
		rec.Media = &MediaInfo{
			FileName:  job.Media.FileName,
			MimeType:  job.Media.MimeType,
			Kind:      job.Media.Kind,
			SizeBytes: len(job.Media.Data),
		}
	}
	return rec
}
