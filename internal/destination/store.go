package destination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"relaymirror/internal/config"
	"relaymirror/internal/logger"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/metrics"
	"relaymirror/pkg/models"
)

// WebhookProber validates a webhook endpoint before a config is persisted.
// Implemented by the webhook package; injected so the store stays off the
// network in tests.
type WebhookProber interface {
	Probe(ctx context.Context, url string) error
}

// Store is the in-memory view of the durable destination configs. Published
// entries are copy-on-write: once a *DestinationConfig lands in the map it
// is never mutated, so readers can hold the pointer without a lock.
type Store struct {
	repo      Repository
	urlPrefix string
	reloadCfg config.ReloadConfig
	prober    WebhookProber
	notifier  *Notifier
	logger    logger.Logger

	// writeMu serializes the durable write with the snapshot swap so two
	// racing upserts to one id cannot commit to the repository in one
	// order and publish in the other.
	writeMu sync.Mutex

	mu      sync.RWMutex
	configs map[int64]*DestinationConfig
}

type StoreOption func(*Store)

func WithProber(p WebhookProber) StoreOption {
	return func(s *Store) {
		s.prober = p
	}
}

func WithNotifier(n *Notifier) StoreOption {
	return func(s *Store) {
		s.notifier = n
	}
}

func NewStore(repo Repository, cfg config.StoreConfig, urlPrefix string, log logger.Logger, opts ...StoreOption) *Store {
	s := &Store{
		repo:      repo,
		urlPrefix: urlPrefix,
		reloadCfg: cfg.Reload,
		logger:    log,
		configs:   make(map[int64]*DestinationConfig),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get returns the config for a destination id. The returned pointer is a
// published snapshot entry and must not be mutated by the caller.
func (s *Store) Get(id int64) (*DestinationConfig, error) {
	s.mu.RLock()
	cfg, ok := s.configs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("destination_id", id)
	}
	return cfg, nil
}

// Upsert validates, normalizes and durably persists a config, then swaps
// it into the in-memory snapshot. The store is left unchanged when
// validation or persistence fails.
func (s *Store) Upsert(ctx context.Context, cfg *DestinationConfig) (*DestinationConfig, error) {
	next := cfg.Clone()
	Normalize(next)
	if err := Validate(next, s.urlPrefix); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	if s.prober != nil && next.Enabled {
		if err := s.prober.Probe(ctx, next.WebhookURL); err != nil {
			return nil, pkgerrors.ErrValidation.WithCause(err).
				WithDetail("message", "webhook probe failed")
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	action := models.ActionCreate
	s.mu.RLock()
	prev, exists := s.configs[next.ID]
	s.mu.RUnlock()
	if exists {
		action = models.ActionUpdate
		next.CreatedAt = prev.CreatedAt
	}

	if err := s.repo.Upsert(ctx, next); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.mu.Lock()
	replaced := make(map[int64]*DestinationConfig, len(s.configs)+1)
	for k, v := range s.configs {
		replaced[k] = v
	}
	replaced[next.ID] = next
	s.configs = replaced
	s.mu.Unlock()

	s.publishGauges()
	s.notify(ctx, action, next.ID)

	s.logger.InfowCtx(ctx, "Destination config stored",
		"destination_id", next.ID,
		"action", action,
		"enabled", next.Enabled,
	)

	return next.Clone(), nil
}

// Delete removes a destination from durable storage and the snapshot.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		if pkgerrors.IsNotFound(err) {
			return err
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.mu.Lock()
	replaced := make(map[int64]*DestinationConfig, len(s.configs))
	for k, v := range s.configs {
		if k != id {
			replaced[k] = v
		}
	}
	s.configs = replaced
	s.mu.Unlock()

	s.publishGauges()
	s.notify(ctx, models.ActionDelete, id)

	s.logger.InfowCtx(ctx, "Destination config deleted",
		"destination_id", id,
	)

	return nil
}

// ListAll returns a value copy of every config, ordered by id.
func (s *Store) ListAll() []DestinationConfig {
	s.mu.RLock()
	out := make([]DestinationConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, *cfg)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reload re-reads durable storage and swaps the whole snapshot. Safe to
// call concurrently with reads; a reader sees either the old map or the
// new one, never a mix.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	configs, err := s.repo.ListAll(ctx)
	if err != nil {
		metrics.IncConfigReload("error")
		return fmt.Errorf("failed to reload destinations: %w", err)
	}

	next := make(map[int64]*DestinationConfig, len(configs))
	for i := range configs {
		cfg := configs[i]
		Normalize(&cfg)
		next[cfg.ID] = &cfg
	}

	s.mu.Lock()
	s.configs = next
	s.mu.Unlock()

	s.publishGauges()
	metrics.IncConfigReload("success")

	s.logger.InfowCtx(ctx, "Reloaded destination configs",
		"count", len(next),
	)
	return nil
}

// StartReloader periodically re-reads durable storage so config written by
// another process (the admin API) becomes visible without a restart. The
// initial load happens during bootstrap, before ingestion starts.
func (s *Store) StartReloader(ctx context.Context) error {
	interval := time.Duration(s.reloadCfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload destination configs",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Store) publishGauges() {
	s.mu.RLock()
	enabled := 0
	for _, cfg := range s.configs {
		if cfg.Enabled {
			enabled++
		}
	}
	s.mu.RUnlock()

	metrics.SetActiveDestinations(enabled)
}

func (s *Store) notify(ctx context.Context, action string, id int64) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishDestinationEvent(ctx, action, id, changedBy(ctx))
}

func changedBy(ctx context.Context) string {
	if userID := ctx.Value("user_id"); userID != nil {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return "system"
}
