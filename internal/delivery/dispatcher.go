package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/destination"
	"relaymirror/internal/logger"
	"relaymirror/internal/stats"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/health"
	"relaymirror/pkg/logging"
	"relaymirror/pkg/metrics"
	"relaymirror/pkg/retry"
)

const backoffMultiplier = 2.0

// ConfigResolver re-resolves a destination at attempt time so config edits
// and deletes between submission and delivery take effect.
type ConfigResolver interface {
	Get(id int64) (*destination.DestinationConfig, error)
}

// Poster performs one delivery attempt.
type Poster interface {
	Send(ctx context.Context, cfg *destination.DestinationConfig, job *Job) error
}

// Offloader stores an attachment that exceeds the destination's cap and
// returns a public link to relay in its place.
type Offloader interface {
	Store(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
}

// DeadLetter archives jobs that end failed-permanent.
type DeadLetter interface {
	Publish(ctx context.Context, job *Job, reason string) error
}

// Dispatcher owns the delivery pipeline: a bounded queue feeding a bounded
// worker pool, with per-destination circuit breaking and pacing, jittered
// exponential retry, and counted drops under backpressure. Submission never
// blocks the ingestion loop.
type Dispatcher struct {
	resolver ConfigResolver
	poster   Poster
	breakers *BreakerRegistry
	pacer    *Pacer
	stats    *stats.Stats
	logger   logger.Logger

	offloader  Offloader
	deadletter DeadLetter

	queue        chan *Job
	workers      int
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	drainGrace   time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	inflight sync.WaitGroup
}

type Option func(*Dispatcher)

// WithOffloader enables oversize media offload instead of permanent
// rejection.
func WithOffloader(o Offloader) Option {
	return func(d *Dispatcher) { d.offloader = o }
}

// WithDeadLetter publishes permanently failed jobs for offline inspection.
func WithDeadLetter(dl DeadLetter) Option {
	return func(d *Dispatcher) { d.deadletter = dl }
}

func NewDispatcher(resolver ConfigResolver, poster Poster, st *stats.Stats, cfg config.DeliveryConfig, log logger.Logger, opts ...Option) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = constants.DefaultWorkerCount
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = constants.DefaultQueueSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = constants.DefaultMaxAttempts
	}
	initialDelay := cfg.InitialDelay
	if initialDelay <= 0 {
		initialDelay = constants.DefaultInitialDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = constants.DefaultMaxDelay
	}
	drainGrace := cfg.DrainGrace
	if drainGrace <= 0 {
		drainGrace = constants.DrainGracePeriod
	}

	d := &Dispatcher{
		resolver:     resolver,
		poster:       poster,
		breakers:     NewBreakerRegistry(cfg.Breaker),
		pacer:        NewPacer(cfg.Rate),
		stats:        st,
		logger:       log,
		queue:        make(chan *Job, queueSize),
		workers:      workers,
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		drainGrace:   drainGrace,
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit queues a job without blocking. A full queue is a counted drop so
// ingestion never stalls behind slow destinations.
func (d *Dispatcher) Submit(ctx context.Context, job *Job) error {
	select {
	case <-d.done:
		return pkgerrors.ErrServiceUnavailable.WithDetail("message", "dispatcher stopped")
	default:
	}

	d.inflight.Add(1)
	select {
	case d.queue <- job:
		metrics.SetDeliveryQueueDepth(len(d.queue))
		return nil
	default:
		d.dropQueueFull(job)
		return pkgerrors.ErrQueueFull
	}
}

// Run starts the worker pool and blocks until ctx is canceled, then stops
// intake and gives queued and in-flight jobs the drain grace to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(workCtx)
	}
	d.logger.Infow("Delivery dispatcher started",
		"workers", d.workers,
		"queue_size", cap(d.queue),
		"max_attempts", d.maxAttempts,
	)

	<-ctx.Done()
	d.stopOnce.Do(func() { close(d.done) })

	drained := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		d.logger.Infow("Delivery queue drained")
	case <-time.After(d.drainGrace):
		d.logger.Warnw("Drain grace expired, abandoning queued jobs",
			"remaining", len(d.queue))
	}

	cancelWork()
	d.wg.Wait()
	return nil
}

// ForgetDestination clears per-destination breaker and pacing state after
// a config delete.
func (d *Dispatcher) ForgetDestination(destinationID int64) {
	d.breakers.Forget(destinationID)
	d.pacer.Forget(destinationID)
}

// Breakers exposes the registry for state queries.
func (d *Dispatcher) Breakers() *BreakerRegistry {
	return d.breakers
}

// HealthChecker returns a checker that watches delivery queue headroom.
func (d *Dispatcher) HealthChecker() health.Checker {
	return &queueChecker{d: d}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.queue:
			metrics.SetDeliveryQueueDepth(len(d.queue))
			d.process(ctx, job)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job *Job) {
	ctx = logging.WithChatID(ctx, job.ChatID)
	ctx = logging.WithDestinationID(ctx, job.DestinationID)

	handled := false
	settle := func(outcome Outcome, cause error) {
		handled = true
		d.finish(ctx, job, outcome, cause)
	}
	defer func() {
		if r := recover(); r != nil {
			err := pkgerrors.RecoverPanic(r)
			d.logger.ErrorwCtx(ctx, "Recovered from panic during delivery",
				"job_id", job.ID, "error", err)
			if !handled {
				d.finish(ctx, job, OutcomeFailedPermanent, err)
			}
		}
	}()

	cfg, err := d.resolver.Get(job.DestinationID)
	if err != nil {
		if !pkgerrors.IsNotFound(err) {
			d.logger.WarnwCtx(ctx, "Failed to resolve destination at delivery time", "error", err)
		}
		settle(OutcomeDroppedGone, err)
		return
	}
	if !cfg.Enabled {
		settle(OutcomeDroppedGone, nil)
		return
	}

	breaker := d.breakers.For(job.DestinationID)
	if breaker.IsOpen() {
		settle(OutcomeDroppedCircuit, pkgerrors.ErrCircuitOpen)
		return
	}

	if job.Media != nil {
		if max := cfg.MaxAttachmentBytes(); max > 0 && int64(len(job.Media.Data)) > max {
			if d.offloader == nil {
				settle(OutcomeFailedPermanent, pkgerrors.ErrPayloadTooLarge.
					WithDetail("size", len(job.Media.Data)).
					WithDetail("limit", max))
				return
			}

			link, offErr := d.offloader.Store(ctx, job.Media.FileName, job.Media.MimeType, job.Media.Data)
			if offErr != nil {
				job.Attempt++
				handled = true
				d.scheduleRetry(ctx, job, pkgerrors.ErrServiceUnavailable.WithCause(offErr).
					WithDetail("message", "media offload failed"), 0)
				return
			}

			d.logger.InfowCtx(ctx, "Oversize attachment offloaded",
				"job_id", job.ID, "bytes", len(job.Media.Data))
			if job.Content != "" {
				job.Content += "\n" + link
			} else {
				job.Content = link
			}
			job.Media = nil
		}
	}

	// One pacer reservation per attempt. A parked job keeps its slot and
	// skips the pacer when it comes back through the queue.
	if !job.paced {
		job.paced = true
		if delay := d.pacer.Delay(job.DestinationID); delay > 0 {
			handled = true
			d.requeueAfter(job, delay)
			return
		}
	}

	start := time.Now()
	_, execErr := breaker.Execute(func() (interface{}, error) {
		return nil, d.poster.Send(ctx, cfg, job)
	})

	if errors.Is(execErr, gobreaker.ErrOpenState) || errors.Is(execErr, gobreaker.ErrTooManyRequests) {
		job.paced = false
		settle(OutcomeDroppedCircuit, pkgerrors.ErrCircuitOpen.WithCause(execErr))
		return
	}

	job.Attempt++
	job.paced = false
	duration := time.Since(start)

	switch {
	case execErr == nil:
		metrics.ObserveDeliveryAttempt("success", duration)
		settle(OutcomeDelivered, nil)
	case pkgerrors.IsRateLimited(execErr):
		metrics.ObserveDeliveryAttempt("rate_limited", duration)
		metrics.RateLimitedTotal.Inc()
		floor, _ := pkgerrors.RetryAfter(execErr)
		handled = true
		d.scheduleRetry(ctx, job, execErr, floor)
	case pkgerrors.IsFatal(execErr):
		metrics.ObserveDeliveryAttempt("error", duration)
		settle(OutcomeFailedPermanent, execErr)
	default:
		metrics.ObserveDeliveryAttempt("error", duration)
		handled = true
		d.scheduleRetry(ctx, job, execErr, 0)
	}
}

// scheduleRetry parks a failed job for a jittered exponential delay, never
// earlier than the destination-provided floor. Callers have already
// counted the failed attempt.
func (d *Dispatcher) scheduleRetry(ctx context.Context, job *Job, cause error, floor time.Duration) {
	if job.Attempt >= d.maxAttempts {
		d.finish(ctx, job, OutcomeFailedPermanent, cause)
		return
	}

	select {
	case <-d.done:
		// No retry budget once shutdown started.
		d.finish(ctx, job, OutcomeFailedPermanent, cause)
		return
	default:
	}

	delay := retry.Jitter(
		retry.CalculateBackoffDuration(job.Attempt-1, d.initialDelay, backoffMultiplier, d.maxDelay),
		retry.DefaultJitterFactor,
	)
	if floor > delay {
		delay = floor
	}

	metrics.DeliveryRetriesTotal.Inc()
	d.logger.WarnwCtx(ctx, "Delivery attempt failed, retry scheduled",
		"job_id", job.ID,
		"attempt", job.Attempt,
		"delay", delay.String(),
		"error", cause,
	)
	d.requeueAfter(job, delay)
}

func (d *Dispatcher) requeueAfter(job *Job, delay time.Duration) {
	time.AfterFunc(delay, func() { d.requeue(job) })
}

func (d *Dispatcher) requeue(job *Job) {
	select {
	case <-d.done:
		metrics.IncDeliveryDrop("shutdown")
		d.inflight.Done()
		return
	default:
	}

	select {
	case d.queue <- job:
		metrics.SetDeliveryQueueDepth(len(d.queue))
	default:
		d.dropQueueFull(job)
	}
}

func (d *Dispatcher) dropQueueFull(job *Job) {
	metrics.IncDeliveryDrop("queue_full")
	metrics.IncDeliveryOutcome(string(OutcomeDroppedQueue))
	d.stats.RecordBackpressureDrop(job.DestinationID)
	d.logger.Warnw("Delivery queue full, dropping job",
		"job_id", job.ID,
		"destination_id", job.DestinationID,
	)
	d.inflight.Done()
}

func (d *Dispatcher) finish(ctx context.Context, job *Job, outcome Outcome, cause error) {
	metrics.IncDeliveryOutcome(string(outcome))

	switch outcome {
	case OutcomeDelivered:
		d.stats.RecordReplicated(job.DestinationID)
		d.logger.InfowCtx(ctx, "Job delivered",
			"job_id", job.ID,
			"attempts", job.Attempt,
		)
	case OutcomeFailedPermanent:
		d.stats.RecordDeliveryFailed(job.DestinationID)
		d.stats.RecordError()
		d.logger.ErrorwCtx(ctx, "Job failed permanently",
			"job_id", job.ID,
			"attempts", job.Attempt,
			"error", cause,
		)
		d.deadLetterJob(ctx, job, cause)
	case OutcomeDroppedCircuit:
		metrics.IncDeliveryDrop("circuit_open")
		d.stats.RecordCircuitDrop(job.DestinationID)
		d.logger.WarnwCtx(ctx, "Job dropped, destination circuit open",
			"job_id", job.ID, "error", cause)
	case OutcomeDroppedGone:
		metrics.IncDeliveryDrop("destination_gone")
		d.logger.InfowCtx(ctx, "Job dropped, destination removed or disabled",
			"job_id", job.ID)
	}

	d.inflight.Done()
}

func (d *Dispatcher) deadLetterJob(ctx context.Context, job *Job, cause error) {
	if d.deadletter == nil {
		return
	}

	reason := "max_attempts_exceeded"
	switch {
	case pkgerrors.IsPayloadTooLarge(cause):
		reason = "payload_too_large"
	case pkgerrors.IsPermanentReject(cause):
		reason = "permanent_reject"
	}

	if err := d.deadletter.Publish(ctx, job, reason); err != nil {
		d.logger.ErrorwCtx(ctx, "Failed to dead-letter job",
			"job_id", job.ID, "error", err)
	}
}

// queueChecker reports degraded when the delivery queue runs near capacity.
type queueChecker struct {
	d *Dispatcher
}

func (c *queueChecker) Name() string { return "delivery_queue" }

func (c *queueChecker) Check(_ context.Context) error {
	depth, capacity := len(c.d.queue), cap(c.d.queue)
	if capacity > 0 && depth*10 >= capacity*9 {
		return &health.DegradedError{
			Reason: fmt.Sprintf("delivery queue at %d/%d", depth, capacity),
		}
	}
	return nil
}
