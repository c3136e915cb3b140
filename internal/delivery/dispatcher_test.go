package delivery

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/destination"
	"relaymirror/internal/logger"
	"relaymirror/internal/stats"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/health"
)

type stubResolver struct {
	mu      sync.Mutex
	configs map[int64]*destination.DestinationConfig
}

func newStubResolver() *stubResolver {
	return &stubResolver{configs: make(map[int64]*destination.DestinationConfig)}
}

func (s *stubResolver) Get(id int64) (*destination.DestinationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("destination_id", id)
	}
	return cfg, nil
}

func (s *stubResolver) set(cfg *destination.DestinationConfig) {
	s.mu.Lock()
	s.configs[cfg.ID] = cfg
	s.mu.Unlock()
}

type scriptedPoster struct {
	mu     sync.Mutex
	script []error
	calls  int
	sent   chan *Job
}

// newScriptedPoster returns errors from script call by call; the last entry
// repeats once the script runs out, and an empty script always succeeds.
func newScriptedPoster(script ...error) *scriptedPoster {
	return &scriptedPoster{script: script, sent: make(chan *Job, 64)}
}

func (p *scriptedPoster) Send(_ context.Context, _ *destination.DestinationConfig, job *Job) error {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	p.sent <- job

	if len(p.script) == 0 {
		return nil
	}
	if idx >= len(p.script) {
		return p.script[len(p.script)-1]
	}
	return p.script[idx]
}

func (p *scriptedPoster) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeOffloader struct {
	mu    sync.Mutex
	link  string
	err   error
	calls int
}

func (f *fakeOffloader) Store(_ context.Context, _, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.link, nil
}

type deadLetterEntry struct {
	JobID  string
	Reason string
}

type fakeDeadLetter struct {
	mu      sync.Mutex
	entries []deadLetterEntry
}

func (f *fakeDeadLetter) Publish(_ context.Context, job *Job, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, deadLetterEntry{JobID: job.ID, Reason: reason})
	return nil
}

func (f *fakeDeadLetter) all() []deadLetterEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]deadLetterEntry(nil), f.entries...)
}

func deliveryDestination(id int64) *destination.DestinationConfig {
	return &destination.DestinationConfig{
		ID:              id,
		Name:            "mirror",
		WebhookURL:      constants.WebhookURLPrefix + "123/token",
		Enabled:         true,
		MaxAttachmentMB: constants.DefaultMaxAttachmentMB,
	}
}

func newJob(destinationID int64, content string) *Job {
	return &Job{
		ID:              uuid.NewString(),
		DestinationID:   destinationID,
		SourceMessageID: "src-1",
		ChatID:          destinationID,
		Content:         content,
		EnqueuedAt:      time.Now(),
	}
}

func testDeliveryConfig() config.DeliveryConfig {
	return config.DeliveryConfig{
		Workers:      1,
		QueueSize:    16,
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		SendTimeout:  time.Second,
		DrainGrace:   200 * time.Millisecond,
		// Above the retry budget so retry tests never trip the breaker;
		// circuit tests lower it explicitly.
		Breaker: config.BreakerConfig{Threshold: 5, RecoveryTimeout: time.Minute},
		Rate:         config.DestRateConfig{RPS: 1000, Burst: 100},
	}
}

type dispatcherHarness struct {
	dispatcher *Dispatcher
	resolver   *stubResolver
	poster     *scriptedPoster
	stats      *stats.Stats
}

func startDispatcher(t *testing.T, cfg config.DeliveryConfig, poster *scriptedPoster, opts ...Option) *dispatcherHarness {
	t.Helper()

	resolver := newStubResolver()
	resolver.set(deliveryDestination(1))

	st := stats.New()
	d := NewDispatcher(resolver, poster, st, cfg, logger.NopLogger(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("dispatcher did not stop")
		}
	})

	return &dispatcherHarness{dispatcher: d, resolver: resolver, poster: poster, stats: st}
}

func (h *dispatcherHarness) submit(t *testing.T, job *Job) {
	t.Helper()
	require.NoError(t, h.dispatcher.Submit(context.Background(), job))
}

func (h *dispatcherHarness) delivered(id int64) uint64 {
	return h.stats.Snapshot().Destinations[id].Delivered
}

func (h *dispatcherHarness) failed(id int64) uint64 {
	return h.stats.Snapshot().Destinations[id].Failed
}

func (h *dispatcherHarness) dropped(id int64) uint64 {
	return h.stats.Snapshot().Destinations[id].Dropped
}

func TestDispatcher_DeliversJob(t *testing.T) {
	poster := newScriptedPoster()
	h := startDispatcher(t, testDeliveryConfig(), poster)

	h.submit(t, newJob(1, "hello"))

	require.Eventually(t, func() bool { return h.delivered(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, poster.callCount())
	assert.Equal(t, uint64(0), h.stats.Snapshot().Errors)
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	poster := newScriptedPoster(pkgerrors.ErrServiceUnavailable, pkgerrors.ErrServiceUnavailable, nil)
	h := startDispatcher(t, testDeliveryConfig(), poster)

	h.submit(t, newJob(1, "hello"))

	require.Eventually(t, func() bool { return h.delivered(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, poster.callCount())
}

func TestDispatcher_ExhaustedAttemptsFailPermanently(t *testing.T) {
	poster := newScriptedPoster(pkgerrors.ErrServiceUnavailable)
	dl := &fakeDeadLetter{}
	h := startDispatcher(t, testDeliveryConfig(), poster, WithDeadLetter(dl))

	h.submit(t, newJob(1, "hello"))

	require.Eventually(t, func() bool { return h.failed(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, poster.callCount())
	assert.Equal(t, uint64(1), h.stats.Snapshot().Errors)

	entries := dl.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "max_attempts_exceeded", entries[0].Reason)
}

func TestDispatcher_PermanentRejectSkipsRetry(t *testing.T) {
	poster := newScriptedPoster(pkgerrors.ErrPermanentReject)
	dl := &fakeDeadLetter{}
	h := startDispatcher(t, testDeliveryConfig(), poster, WithDeadLetter(dl))

	h.submit(t, newJob(1, "hello"))

	require.Eventually(t, func() bool { return h.failed(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, poster.callCount())

	entries := dl.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "permanent_reject", entries[0].Reason)
}

func TestDispatcher_RateLimitRetriesWithoutTrippingBreaker(t *testing.T) {
	rl := pkgerrors.ErrRateLimited.WithRetryAfter(5 * time.Millisecond)
	poster := newScriptedPoster(rl, rl, nil)
	h := startDispatcher(t, testDeliveryConfig(), poster)

	h.submit(t, newJob(1, "hello"))

	require.Eventually(t, func() bool { return h.delivered(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, poster.callCount())

	state, ok := h.dispatcher.Breakers().State(1)
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateClosed, state)
}

func TestDispatcher_RetryAfterFloorRespected(t *testing.T) {
	poster := newScriptedPoster(pkgerrors.ErrRateLimited.WithRetryAfter(80*time.Millisecond), nil)
	h := startDispatcher(t, testDeliveryConfig(), poster)

	start := time.Now()
	h.submit(t, newJob(1, "hello"))

	require.Eventually(t, func() bool { return h.delivered(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond,
		"second attempt must not run before the destination's floor")
}

func TestDispatcher_OpenCircuitShortCircuits(t *testing.T) {
	cfg := testDeliveryConfig()
	cfg.MaxAttempts = 1
	cfg.Breaker.Threshold = 2
	poster := newScriptedPoster(pkgerrors.ErrServiceUnavailable)
	h := startDispatcher(t, cfg, poster)

	h.submit(t, newJob(1, "one"))
	require.Eventually(t, func() bool { return h.failed(1) == 1 }, 2*time.Second, 5*time.Millisecond)

	h.submit(t, newJob(1, "two"))
	require.Eventually(t, func() bool { return h.failed(1) == 2 }, 2*time.Second, 5*time.Millisecond)

	h.submit(t, newJob(1, "three"))
	require.Eventually(t, func() bool { return h.dropped(1) == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, poster.callCount(), "open circuit must not reach the network")
	assert.Equal(t, uint64(2), h.failed(1), "a circuit drop is not a delivery failure")
	assert.Equal(t, uint64(1), h.stats.Snapshot().CircuitOpenDrops)

	state, ok := h.dispatcher.Breakers().State(1)
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateOpen, state)
}

func TestDispatcher_GoneOrDisabledDestinationDropped(t *testing.T) {
	poster := newScriptedPoster()
	h := startDispatcher(t, testDeliveryConfig(), poster)

	disabled := deliveryDestination(2)
	disabled.Enabled = false
	h.resolver.set(disabled)

	h.submit(t, newJob(99, "unknown destination"))
	h.submit(t, newJob(2, "disabled destination"))
	h.submit(t, newJob(1, "live destination"))

	require.Eventually(t, func() bool { return h.delivered(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, poster.callCount())
	assert.Equal(t, uint64(0), h.failed(99))
	assert.Equal(t, uint64(0), h.failed(2))
}

func TestDispatcher_QueueFullIsCountedDrop(t *testing.T) {
	cfg := testDeliveryConfig()
	cfg.QueueSize = 1

	resolver := newStubResolver()
	resolver.set(deliveryDestination(1))
	st := stats.New()
	d := NewDispatcher(resolver, newScriptedPoster(), st, cfg, logger.NopLogger())

	require.NoError(t, d.Submit(context.Background(), newJob(1, "first")))

	err := d.Submit(context.Background(), newJob(1, "second"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsQueueFull(err))
	view := st.Snapshot()
	assert.Equal(t, uint64(1), view.Destinations[1].Dropped)
	assert.Equal(t, uint64(1), view.BackpressureDrops)
	assert.Zero(t, view.Destinations[1].Failed)
}

func TestDispatcher_SubmitAfterStopRejected(t *testing.T) {
	resolver := newStubResolver()
	resolver.set(deliveryDestination(1))
	d := NewDispatcher(resolver, newScriptedPoster(), stats.New(), testDeliveryConfig(), logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	err := d.Submit(context.Background(), newJob(1, "late"))
	require.Error(t, err)
	assert.False(t, pkgerrors.IsQueueFull(err))
}

func TestDispatcher_OversizeWithoutOffloaderIsPermanent(t *testing.T) {
	poster := newScriptedPoster()
	dl := &fakeDeadLetter{}
	h := startDispatcher(t, testDeliveryConfig(), poster, WithDeadLetter(dl))

	small := deliveryDestination(1)
	small.MaxAttachmentMB = 1
	h.resolver.set(small)

	job := newJob(1, "big file")
	job.Media = &OutboundMedia{
		FileName: "huge.bin",
		MimeType: "application/octet-stream",
		Kind:     "document",
		Data:     bytes.Repeat([]byte{0xAB}, (1<<20)+512),
	}
	h.submit(t, job)

	require.Eventually(t, func() bool { return h.failed(1) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, poster.callCount(), "oversize is rejected before any network attempt")

	entries := dl.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "payload_too_large", entries[0].Reason)
}

func TestDispatcher_OversizeOffloadedAndDelivered(t *testing.T) {
	poster := newScriptedPoster()
	offloader := &fakeOffloader{link: "https://cdn.example/huge.bin"}
	h := startDispatcher(t, testDeliveryConfig(), poster, WithOffloader(offloader))

	small := deliveryDestination(1)
	small.MaxAttachmentMB = 1
	h.resolver.set(small)

	job := newJob(1, "big file")
	job.Media = &OutboundMedia{
		FileName: "huge.bin",
		MimeType: "application/octet-stream",
		Kind:     "document",
		Data:     bytes.Repeat([]byte{0xAB}, (1<<20)+512),
	}
	h.submit(t, job)

	require.Eventually(t, func() bool { return h.delivered(1) == 1 }, 2*time.Second, 5*time.Millisecond)

	sent := <-poster.sent
	assert.Nil(t, sent.Media, "attachment must be replaced by the link")
	assert.Equal(t, "big file\nhttps://cdn.example/huge.bin", sent.Content)
	assert.Equal(t, 1, offloader.calls)
}

func TestDispatcher_PacerSpacesAttempts(t *testing.T) {
	cfg := testDeliveryConfig()
	cfg.Rate = config.DestRateConfig{RPS: 20, Burst: 1}
	poster := newScriptedPoster()
	h := startDispatcher(t, cfg, poster)

	start := time.Now()
	h.submit(t, newJob(1, "first"))
	h.submit(t, newJob(1, "second"))

	require.Eventually(t, func() bool { return h.delivered(1) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond,
		"second attempt must wait for the destination's next slot")
}

func TestQueueHealthChecker(t *testing.T) {
	cfg := testDeliveryConfig()
	cfg.QueueSize = 10

	resolver := newStubResolver()
	resolver.set(deliveryDestination(1))
	d := NewDispatcher(resolver, newScriptedPoster(), stats.New(), cfg, logger.NopLogger())

	checker := d.HealthChecker()
	assert.Equal(t, "delivery_queue", checker.Name())
	assert.NoError(t, checker.Check(context.Background()))

	for i := 0; i < 9; i++ {
		require.NoError(t, d.Submit(context.Background(), newJob(1, "queued")))
	}

	err := checker.Check(context.Background())
	require.Error(t, err)

	var degraded *health.DegradedError
	assert.ErrorAs(t, err, &degraded)
}
