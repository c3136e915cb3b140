package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	// WebhookURLPrefix is the shape a destination URL must match before a
	// config is accepted.
	WebhookURLPrefix = "https://discord.com/api/webhooks/"

	WebhookSendTimeout  = 30 * time.Second
	WebhookProbeTimeout = 10 * time.Second

	// Accepted status codes per the destination platform: JSON text posts
	// return 204, multipart posts with attachments return 200.
	WebhookAcceptedJSON      = 204
	WebhookAcceptedMultipart = 200

	ProbeUsername = "Webhook Helper"
	ProbeMessage  = "Webhook connection verified"
)

const (
	DefaultMaxAttachmentMB = 25

	DefaultQueueSize    = 1000
	DefaultWorkerCount  = 10
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second

	DefaultBreakerThreshold = 5
	DefaultBreakerRecovery  = 60 * time.Second

	// Outbound pacing per destination, in requests per second.
	DefaultDestinationRate  = 5.0
	DefaultDestinationBurst = 5
)

const (
	// Watermark defaults applied when a config leaves a field zero.
	DefaultPositionMargin   = 20
	DefaultTextOffsetX      = 20
	DefaultTextOffsetY      = 60
	DefaultFontSize         = 32
	DefaultFillColor        = "#FFFFFF"
	DefaultStrokeColor      = "#000000"
	DefaultStrokeWidth      = 2
	DefaultOverlayScale     = 0.15
	DefaultOverlayOpacity   = 0.7
	DefaultJPEGQuality      = 85
	MinJPEGQuality          = 40
	JPEGQualityStep         = 10
	DefaultVideoCRF         = 23
	OverlayCacheExpiration  = 30 * time.Minute
	OverlayCacheCleanupTick = 10 * time.Minute
)

const (
	// DedupWindowSize bounds the per-chat recency window of seen source
	// message ids.
	DedupWindowSize = 512
)

const (
	DefaultInputTopic      = "source_events"
	DefaultDeadLetterTopic = "source_events_dlq"

	// DefaultDeadLetterQueue receives delivery jobs that failed permanently.
	DefaultDeadLetterQueue = "delivery_dead_letters"
)

const (
	ShutdownTimeout  = 5 * time.Second
	DrainGracePeriod = 10 * time.Second
)

const (
	DefaultTruncateLen = 100
)

const (
	SourceTypeKafka   = "kafka"
	SourceTypeChannel = "channel"
)

const (
	DatabaseEngineSQLite   = "sqlite"
	DatabaseEnginePostgres = "postgres"
)
