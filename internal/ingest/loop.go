package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"relaymirror/internal/config"
	"relaymirror/internal/delivery"
	"relaymirror/internal/destination"
	"relaymirror/internal/logger"
	"relaymirror/internal/source"
	"relaymirror/internal/stats"
	"relaymirror/internal/watermark"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/logging"
	"relaymirror/pkg/metrics"
	"relaymirror/pkg/models"
)

// ConfigResolver looks up the destination mirroring a source chat.
type ConfigResolver interface {
	Get(id int64) (*destination.DestinationConfig, error)
}

// Transformer applies a destination's watermark settings to outbound
// content.
type Transformer interface {
	TransformText(text string, wm *destination.WatermarkConfig) string
	TransformImage(ctx context.Context, data []byte, wm *destination.WatermarkConfig, maxBytes int64) (*watermark.MediaResult, error)
	TransformVideo(ctx context.Context, data []byte, wm *destination.WatermarkConfig) (*watermark.MediaResult, error)
	VideoEnabled() bool
}

// Dispatcher accepts prepared jobs for asynchronous delivery.
type Dispatcher interface {
	Submit(ctx context.Context, job *delivery.Job) error
}

// Loop drives the ingestion pipeline: consume an event, resolve its
// destination, filter, deduplicate, transform, and hand the result to the
// dispatcher. Each event is handled to completion before the next one.
type Loop struct {
	source      source.Source
	resolver    ConfigResolver
	transformer Transformer
	dispatcher  Dispatcher
	dedup       *Deduper
	stats       *stats.Stats
	logger      logger.Logger
}

func NewLoop(
	src source.Source,
	resolver ConfigResolver,
	transformer Transformer,
	dispatcher Dispatcher,
	st *stats.Stats,
	cfg config.IngestConfig,
	log logger.Logger,
) *Loop {
	return &Loop{
		source:      src,
		resolver:    resolver,
		transformer: transformer,
		dispatcher:  dispatcher,
		dedup:       NewDeduper(cfg.DedupWindow),
		stats:       st,
		logger:      log,
	}
}

// Start consumes events until ctx is canceled or the source closes.
func (l *Loop) Start(ctx context.Context) error {
	return l.source.Consume(ctx, l.handleEvent)
}

// Stop closes the underlying source, which ends Start.
func (l *Loop) Stop() error {
	return l.source.Close()
}

func (l *Loop) handleEvent(ctx context.Context, envelope models.EventEnvelope) (err error) {
	start := time.Now()
	status := "submitted"

	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.RecoverPanic(r)
			status = "error"
			l.stats.RecordError()
			l.logger.ErrorwCtx(ctx, "Recovered from panic while processing event", "error", err)
		}
		metrics.IngestMessagesTotal.WithLabelValues(status).Inc()
		metrics.ObserveIngestDuration(time.Since(start), status)
	}()

	l.stats.RecordSeen()

	msg := FromEnvelope(envelope)
	ctx = logging.WithChatID(ctx, msg.ChatID)

	if !msg.HasContent() {
		status = "empty"
		l.logger.DebugwCtx(ctx, "Skipping event without content")
		return nil
	}

	if l.dedup.Seen(msg.ChatID, msg.SourceMessageID) {
		status = "duplicate"
		l.logger.DebugwCtx(ctx, "Skipping already replicated message",
			"source_message_id", msg.SourceMessageID)
		return nil
	}

	cfg, err := l.resolver.Get(msg.ChatID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			status = "no_destination"
			return nil
		}
		status = "error"
		l.stats.RecordError()
		l.logger.ErrorwCtx(ctx, "Failed to resolve destination", "error", err)
		return err
	}
	ctx = logging.WithDestinationID(ctx, cfg.ID)

	if !cfg.Enabled {
		status = "disabled"
		l.logger.DebugwCtx(ctx, "Destination disabled, skipping")
		return nil
	}

	if ok, reason := Allow(cfg.Filters, msg); !ok {
		status = "filtered"
		l.stats.RecordFiltered()
		l.logger.InfowCtx(ctx, "Message rejected by destination filters", "reason", reason)
		return nil
	}

	job := l.buildJob(ctx, msg, cfg)

	// Recorded before the hand-off: a source redelivery from here on is a
	// true duplicate. Earlier failures stay retryable.
	l.dedup.Record(msg.ChatID, msg.SourceMessageID)

	if err := l.dispatcher.Submit(ctx, job); err != nil {
		status = "error"
		l.stats.RecordError()
		l.logger.WarnwCtx(ctx, "Dispatcher rejected job", "job_id", job.ID, "error", err)
		return nil
	}

	l.logger.InfowCtx(ctx, "Job submitted for delivery",
		"job_id", job.ID,
		"source_message_id", msg.SourceMessageID,
		"has_media", job.Media != nil)
	return nil
}

func (l *Loop) buildJob(ctx context.Context, msg InboundMessage, cfg *destination.DestinationConfig) *delivery.Job {
	content := l.transformer.TransformText(msg.Text, &cfg.Watermark)

	var media *delivery.OutboundMedia
	if msg.Media != nil {
		media = l.transformMedia(ctx, msg.Media, cfg)
	} else {
		l.stats.RecordMediaProcessed(stats.KindText)
	}

	return &delivery.Job{
		ID:              uuid.NewString(),
		DestinationID:   cfg.ID,
		SourceMessageID: msg.SourceMessageID,
		ChatID:          msg.ChatID,
		Content:         content,
		Media:           media,
		Attempt:         0,
		EnqueuedAt:      time.Now(),
	}
}

// transformMedia watermarks an attachment when the destination asks for
// it. Transform failures degrade to forwarding the original bytes rather
// than losing the message.
func (l *Loop) transformMedia(ctx context.Context, payload *models.MediaPayload, cfg *destination.DestinationConfig) *delivery.OutboundMedia {
	kind := payload.Kind
	if kind == "" {
		kind = DetectKind(payload.Data, payload.FileName, payload.MimeType)
	}
	l.stats.RecordMediaProcessed(kind)

	out := &delivery.OutboundMedia{
		FileName: payload.FileName,
		MimeType: payload.MimeType,
		Kind:     kind,
		Data:     payload.Data,
	}

	wm := &cfg.Watermark
	if wm.Mode == destination.ModeNone || wm.Mode == "" {
		return out
	}

	var (
		result *watermark.MediaResult
		err    error
	)
	transformStart := time.Now()

	switch {
	case kind == stats.KindImage && wm.ApplyToImages:
		result, err = l.transformer.TransformImage(ctx, payload.Data, wm, cfg.MaxAttachmentBytes())
	case kind == stats.KindVideo && wm.ApplyToVideos && l.transformer.VideoEnabled():
		result, err = l.transformer.TransformVideo(ctx, payload.Data, wm)
	default:
		return out
	}

	if err != nil {
		metrics.TransformsTotal.WithLabelValues(kind, "error").Inc()
		l.stats.RecordError()
		l.logger.WarnwCtx(ctx, "Media transform failed, forwarding original",
			"kind", kind, "error", err)
		return out
	}

	metrics.TransformsTotal.WithLabelValues(kind, "success").Inc()
	metrics.ObserveTransformDuration(kind, time.Since(transformStart))

	out.Data = result.Data
	if result.MimeType != "" && result.MimeType != payload.MimeType {
		out.MimeType = result.MimeType
		out.FileName = fileNameForMime(payload.FileName, result.MimeType)
	}
	if result.Watermarked {
		l.stats.RecordWatermark()
		metrics.WatermarksAppliedTotal.Inc()
	}
	return out
}

// fileNameForMime renames an attachment whose encoding changed during
// transform so the extension matches what is actually sent.
func fileNameForMime(name, mimeType string) string {
	ext := ""
	switch mimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	case "video/mp4":
		ext = ".mp4"
	default:
		return name
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "attachment"
	}
	return base + ext
}
