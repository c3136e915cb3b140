package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Total number of source events processed by the ingestion loop (count)",
		},
		[]string{"status"},
	)

	IngestProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_ms",
			Help:    "Processing duration for one source event in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"status"},
	)

	DedupTrackedChats = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_tracked_chats",
			Help: "Number of chats with an active de-duplication window (count)",
		},
	)

	TransformsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transforms_total",
			Help: "Total number of payload transforms by media kind (count)",
		},
		[]string{"kind", "status"},
	)

	TransformDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transform_duration_ms",
			Help:    "Duration of payload transforms in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"kind"},
	)

	WatermarksAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "watermarks_applied_total",
			Help: "Total number of watermarks applied to outgoing payloads (count)",
		},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Total number of delivery jobs by terminal outcome (count)",
		},
		[]string{"outcome"},
	)

	DeliveryAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_attempt_duration_ms",
			Help:    "Duration of one outbound webhook attempt in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"status"},
	)

	DeliveryRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_retries_total",
			Help: "Total number of delivery attempts rescheduled for retry (count)",
		},
	)

	DeliveryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_queue_depth",
			Help: "Current number of jobs waiting in the delivery queue (count)",
		},
	)

	DeliveryDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_drops_total",
			Help: "Total number of jobs dropped before send by reason (count)",
		},
		[]string{"reason"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total number of destination rate-limit responses (count)",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	ActiveDestinations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_destinations",
			Help: "Number of enabled destination configs in the store (count)",
		},
	)

	ConfigReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_reloads_total",
			Help: "Total number of destination config reloads (count)",
		},
		[]string{"status"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	WebhookProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_probes_total",
			Help: "Total number of webhook validation probes (count)",
		},
		[]string{"result"},
	)

	WebhookProbeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_probe_latency_ms",
			Help:    "Latency of webhook validation probes in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	MediaOffloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_offloads_total",
			Help: "Total number of oversized attachments offloaded to object storage (count)",
		},
		[]string{"status"},
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_letters_total",
			Help: "Total number of permanently failed jobs published to the dead-letter queue (count)",
		},
		[]string{"status"},
	)
)

func RegisterIngestMetrics() {
	prometheus.MustRegister(IngestMessagesTotal)
	prometheus.MustRegister(IngestProcessingDuration)
	prometheus.MustRegister(DedupTrackedChats)
}

func RegisterTransformMetrics() {
	prometheus.MustRegister(TransformsTotal)
	prometheus.MustRegister(TransformDuration)
	prometheus.MustRegister(WatermarksAppliedTotal)
}

func RegisterDeliveryMetrics() {
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(DeliveryAttemptDuration)
	prometheus.MustRegister(DeliveryRetriesTotal)
	prometheus.MustRegister(DeliveryQueueDepth)
	prometheus.MustRegister(DeliveryDropsTotal)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(DeadLettersTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterSourceMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaReadDuration)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterStoreMetrics() {
	prometheus.MustRegister(ActiveDestinations)
	prometheus.MustRegister(ConfigReloadsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
	prometheus.MustRegister(MediaOffloadsTotal)
}

func RegisterWebhookMetrics() {
	prometheus.MustRegister(WebhookProbesTotal)
	prometheus.MustRegister(WebhookProbeLatency)
}

func ObserveIngestDuration(duration time.Duration, status string) {
	IngestProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveTransformDuration(kind string, duration time.Duration) {
	TransformDuration.WithLabelValues(kind).Observe(float64(duration.Milliseconds()))
}

func ObserveDeliveryAttempt(status string, duration time.Duration) {
	DeliveryAttemptDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncDeliveryOutcome(outcome string) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
}

func IncDeliveryDrop(reason string) {
	DeliveryDropsTotal.WithLabelValues(reason).Inc()
}

func SetDeliveryQueueDepth(depth int) {
	DeliveryQueueDepth.Set(float64(depth))
}

func SetDedupTrackedChats(count int) {
	DedupTrackedChats.Set(float64(count))
}

func SetActiveDestinations(count int) {
	ActiveDestinations.Set(float64(count))
}

func IncConfigReload(status string) {
	ConfigReloadsTotal.WithLabelValues(status).Inc()
}

// Helper functions for source metrics
func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func IncWebhookProbe(result string, latency time.Duration) {
	WebhookProbesTotal.WithLabelValues(result).Inc()
	WebhookProbeLatency.Observe(float64(latency.Milliseconds()))
}

func IncMediaOffload(status string) {
	MediaOffloadsTotal.WithLabelValues(status).Inc()
}

func IncDeadLetter(status string) {
	DeadLettersTotal.WithLabelValues(status).Inc()
}
