package destination

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

type fakeRepo struct {
	mu        sync.Mutex
	records   map[int64]*DestinationConfig
	upserts   int
	deletes   int
	upsertErr error
	listErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[int64]*DestinationConfig)}
}

func (f *fakeRepo) Upsert(ctx context.Context, cfg *DestinationConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	f.records[cfg.ID] = cfg.Clone()
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (*DestinationConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.records[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("destination_id", id)
	}
	return cfg.Clone(), nil
}

func (f *fakeRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("destination_id", id)
	}
	f.deletes++
	delete(f.records, id)
	return nil
}

func (f *fakeRepo) ListAll(ctx context.Context) ([]DestinationConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]DestinationConfig, 0, len(f.records))
	for _, cfg := range f.records {
		out = append(out, *cfg.Clone())
	}
	return out, nil
}

type fakeProber struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeProber) Probe(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func newTestStore(t *testing.T, repo Repository, opts ...StoreOption) *Store {
	t.Helper()
	cfg := config.StoreConfig{Reload: config.ReloadConfig{IntervalSeconds: 0}}
	return NewStore(repo, cfg, constants.WebhookURLPrefix, logger.NopLogger(), opts...)
}

func TestStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := newTestStore(t, repo)

	stored, err := store.Upsert(ctx, validConfig(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	got, err := store.Get(42)
	require.NoError(t, err)
	assert.Equal(t, stored.WebhookURL, got.WebhookURL)
	assert.Equal(t, constants.DefaultMaxAttachmentMB, got.MaxAttachmentMB)
}

func TestStore_Upsert_PreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := newTestStore(t, repo)

	first, err := store.Upsert(ctx, validConfig(42))
	require.NoError(t, err)

	update := validConfig(42)
	update.Name = "renamed"
	second, err := store.Upsert(ctx, update)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "renamed", second.Name)
}

func TestStore_Upsert_InvalidURLLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := newTestStore(t, repo)

	_, err := store.Upsert(ctx, validConfig(42))
	require.NoError(t, err)
	upsertsBefore := repo.upserts

	bad := validConfig(42)
	bad.Name = "should not land"
	bad.WebhookURL = "https://example.com/not-a-webhook"

	_, err = store.Upsert(ctx, bad)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))

	got, err := store.Get(42)
	require.NoError(t, err)
	assert.Equal(t, "mirror", got.Name)
	assert.Equal(t, upsertsBefore, repo.upserts, "no partial write on validation failure")
}

func TestStore_Upsert_ProbeFailureRejectsConfig(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	prober := &fakeProber{err: errors.New("probe returned 404")}
	store := newTestStore(t, repo, WithProber(prober))

	_, err := store.Upsert(ctx, validConfig(42))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Equal(t, 0, repo.upserts)
	assert.Equal(t, 1, prober.calls)
}

func TestStore_Upsert_DisabledConfigSkipsProbe(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	prober := &fakeProber{err: errors.New("probe returned 404")}
	store := newTestStore(t, repo, WithProber(prober))

	cfg := validConfig(42)
	cfg.Enabled = false

	_, err := store.Upsert(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, prober.calls)
}

func TestStore_GetUnknownDestination(t *testing.T) {
	store := newTestStore(t, newFakeRepo())

	_, err := store.Get(9000)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := newTestStore(t, repo)

	_, err := store.Upsert(ctx, validConfig(42))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, 42))
	assert.Equal(t, 1, repo.deletes)

	_, err = store.Get(42)
	assert.True(t, pkgerrors.IsNotFound(err))

	err = store.Delete(ctx, 42)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_Reload_SwapsSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := newTestStore(t, repo)

	require.NoError(t, repo.Upsert(ctx, validConfig(1)))
	require.NoError(t, repo.Upsert(ctx, validConfig(2)))

	_, err := store.Get(1)
	assert.True(t, pkgerrors.IsNotFound(err), "nothing visible before reload")

	require.NoError(t, store.Reload(ctx))

	got, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Len(t, store.ListAll(), 2)
}

func TestStore_Reload_ErrorKeepsOldSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := newTestStore(t, repo)

	_, err := store.Upsert(ctx, validConfig(1))
	require.NoError(t, err)

	repo.listErr = errors.New("database gone")
	require.Error(t, store.Reload(ctx))

	got, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
}

func TestStore_ConcurrentUpsertsToOneIDStayConsistent(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := newTestStore(t, repo)

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			defer wg.Done()
			cfg := validConfig(42)
			cfg.Name = fmt.Sprintf("writer-%d", n)
			_, err := store.Upsert(ctx, cfg)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Whoever committed last durably must also be the one Get serves.
	got, err := store.Get(42)
	require.NoError(t, err)

	repo.mu.Lock()
	persisted := repo.records[42].Name
	repo.mu.Unlock()
	assert.Equal(t, persisted, got.Name)
}

func TestStore_ListAll_OrderedByID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFakeRepo())

	for _, id := range []int64{30, 10, 20} {
		_, err := store.Upsert(ctx, validConfig(id))
		require.NoError(t, err)
	}

	all := store.ListAll()
	require.Len(t, all, 3)
	assert.Equal(t, int64(10), all[0].ID)
	assert.Equal(t, int64(20), all[1].ID)
	assert.Equal(t, int64(30), all[2].ID)
}

func TestNotifier_PublishesStoreMutations(t *testing.T) {
	ctx := context.Background()
	notifier := NewNotifier(logger.NopLogger())
	defer notifier.Close()

	events := notifier.Subscribe(8)
	store := newTestStore(t, newFakeRepo(), WithNotifier(notifier))

	_, err := store.Upsert(ctx, validConfig(42))
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, models.EventTypeDestinationUpdated, ev.EventType)
	assert.Equal(t, models.ActionCreate, ev.Action)
	assert.Equal(t, int64(42), ev.DestinationID)

	_, err = store.Upsert(ctx, validConfig(42))
	require.NoError(t, err)
	ev = <-events
	assert.Equal(t, models.ActionUpdate, ev.Action)

	require.NoError(t, store.Delete(ctx, 42))
	ev = <-events
	assert.Equal(t, models.ActionDelete, ev.Action)
}

func TestNotifier_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	ctx := context.Background()
	notifier := NewNotifier(logger.NopLogger())
	defer notifier.Close()

	events := notifier.Subscribe(1)

	for i := 0; i < 5; i++ {
		notifier.PublishDestinationEvent(ctx, models.ActionUpdate, int64(i), "system")
	}

	// Only the first event fits the buffer; the rest were dropped rather
	// than blocking the store.
	ev := <-events
	assert.Equal(t, int64(0), ev.DestinationID)
	select {
	case extra := <-events:
		t.Fatalf("expected no queued events, got destination %d", extra.DestinationID)
	default:
	}
}
