package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"relaymirror/internal/config"
	"relaymirror/internal/constants"
	"relaymirror/internal/deadletter"
	"relaymirror/internal/delivery"
	"relaymirror/internal/destination"
	"relaymirror/internal/ingest"
	"relaymirror/internal/logger"
	"relaymirror/internal/mediastore"
	"relaymirror/internal/stats"
	"relaymirror/internal/watermark"
	"relaymirror/internal/webhook"
	"relaymirror/pkg/bootstrap"
	"relaymirror/pkg/health"
	"relaymirror/pkg/logging"
	"relaymirror/pkg/metrics"
	"relaymirror/pkg/middleware"
	"relaymirror/pkg/models"
	"relaymirror/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	db             *sqlx.DB
	store          *destination.Store
	notifier       *destination.Notifier
	engine         *watermark.Engine
	stats          *stats.Stats
	dispatcher     *delivery.Dispatcher
	loop           *ingest.Loop
	deadletter     *deadletter.AMQP
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("replicator-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		stats:       stats.New(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize destination store: %w", err)
	}

	if err := a.initEngine(); err != nil {
		return fmt.Errorf("failed to initialize watermark engine: %w", err)
	}

	if err := a.initDispatcher(ctx); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	if err := a.InitSource("replicator-service"); err != nil {
		return fmt.Errorf("failed to initialize source: %w", err)
	}

	a.loop = ingest.NewLoop(a.Source, a.store, a.engine, a.dispatcher, a.stats, a.Config.Ingest, a.Logger)

	tp, err := tracing.Init(a.Config.Tracing, "replicator-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterIngestMetrics()
	metrics.RegisterTransformMetrics()
	metrics.RegisterDeliveryMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterSourceMetrics()
	metrics.RegisterStoreMetrics()
	metrics.RegisterWebhookMetrics()

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitDatabase(ctx)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	repo, err := destination.NewRepository(ctx, a.db)
	if err != nil {
		return err
	}

	a.notifier = destination.NewNotifier(a.Logger)
	prober := webhook.NewValidator(a.Config.Webhook, a.Logger)

	a.store = destination.NewStore(repo, a.Config.Store, a.Config.Webhook.URLPrefix, a.Logger,
		destination.WithProber(prober),
		destination.WithNotifier(a.notifier),
	)

	// Initial load happens before ingestion starts; the reloader recovers
	// from a failure here once storage is back.
	if err := a.store.Reload(ctx); err != nil {
		initCtx := logging.WithServiceName(ctx, "replicator-service")
		a.Logger.WarnwCtx(initCtx, "Initial destination load failed, starting empty",
			"error", err,
		)
	}
	return nil
}

func (a *App) initEngine() error {
	engine, err := watermark.NewEngine(a.Config.Transform, a.Logger)
	if err != nil {
		return err
	}
	a.engine = engine
	return nil
}

func (a *App) initDispatcher(ctx context.Context) error {
	var opts []delivery.Option

	if a.Config.MediaStore.Enabled {
		ms, err := mediastore.New(a.Config.MediaStore, a.Logger)
		if err != nil {
			return fmt.Errorf("media store: %w", err)
		}
		if err := ms.Ping(ctx); err != nil {
			initCtx := logging.WithServiceName(ctx, "replicator-service")
			a.Logger.WarnwCtx(initCtx, "Media store unreachable, offload will fail until it recovers",
				"error", err,
			)
		}
		opts = append(opts, delivery.WithOffloader(ms))
	}

	if a.Config.DeadLetter.Enabled {
		dl, err := deadletter.New(a.Config.DeadLetter, a.Logger)
		if err != nil {
			return fmt.Errorf("dead letter: %w", err)
		}
		a.deadletter = dl
		opts = append(opts, delivery.WithDeadLetter(dl))
	}

	sender := delivery.NewSender(a.Config.Delivery, a.Logger)
	a.dispatcher = delivery.NewDispatcher(a.store, sender, a.stats, a.Config.Delivery, a.Logger, opts...)
	return nil
}

func (a *App) initHTTPServer() error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewDatabaseChecker(a.db.DB, a.Config.Database.Engine))
	healthRegistry.Register(a.dispatcher.HealthChecker())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(a.stats.Snapshot()); err != nil {
			a.Logger.ErrorwCtx(r.Context(), "Failed to encode stats", "error", err)
		}
	})

	mux.HandleFunc("/stats/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a.stats.Reset()
		w.WriteHeader(http.StatusNoContent)
	})

	handler := middleware.RequestLogger(a.Logger)(middleware.Recovery(a.Logger)(mux))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      tracing.WrapHandler(handler, "ops"),
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			srvCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(srvCtx)
		})
	}

	g.Go(func() error {
		return a.dispatcher.Run(gCtx)
	})

	g.Go(func() error {
		return a.store.StartReloader(gCtx)
	})

	configEvents := a.notifier.Subscribe(16)
	g.Go(func() error {
		return a.consumeConfigEvents(gCtx, configEvents)
	})

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "Ingestion loop starting")
		return a.loop.Start(gCtx)
	})

	return g.Wait()
}

// consumeConfigEvents resets per-destination delivery state when a config is
// rewritten or removed, so a fixed webhook does not inherit an open circuit.
func (a *App) consumeConfigEvents(ctx context.Context, events <-chan models.ConfigUpdateEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			switch evt.Action {
			case models.ActionUpdate, models.ActionDelete:
				a.dispatcher.ForgetDestination(evt.DestinationID)
				a.Logger.InfowCtx(ctx, "Reset delivery state for destination",
					"destination_id", evt.DestinationID,
					"action", evt.Action,
				)
			}
		}
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "replicator-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down replicator service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			srvCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(srvCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.notifier != nil {
			a.notifier.Close()
		}

		if a.deadletter != nil {
			if err := a.deadletter.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dead letter close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.db)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
