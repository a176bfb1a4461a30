package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/lingodeck/hub/internal/anki"
	"github.com/lingodeck/hub/internal/api/handlers"
	"github.com/lingodeck/hub/internal/api/middleware"
	"github.com/lingodeck/hub/internal/config"
	"github.com/lingodeck/hub/internal/embeddings"
	"github.com/lingodeck/hub/internal/observability"
	"github.com/lingodeck/hub/internal/repository"
	"github.com/lingodeck/hub/internal/service"
	"github.com/lingodeck/hub/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg           *config.Config
	db            *pgxpool.Pool
	server        *http.Server
	river         *river.Client[pgx.Tx]
	meterProvider observability.MeterProviderShutdown
}

// newEncoder builds the embedding client stack: the backend model (OpenAI
// when an API key is configured, the deterministic local encoder otherwise),
// wrapped in the bounded inference pool and the content-addressed cache.
func newEncoder(cfg *config.Config) (*embeddings.CachingClient, error) {
	var backend embeddings.Client

	if cfg.OpenAIAPIKey != "" {
		backend = embeddings.NewOpenAIClient(cfg.OpenAIAPIKey,
			embeddings.WithModel(cfg.EmbeddingModel),
			embeddings.WithDimension(cfg.EmbeddingDimension),
		)
		slog.Info("embedding backend: openai", "model", cfg.EmbeddingModel, "dimension", cfg.EmbeddingDimension)
	} else {
		backend = embeddings.NewMockClient(cfg.EmbeddingDimension)
		slog.Info("embedding backend: local deterministic encoder (OPENAI_API_KEY not set)",
			"dimension", cfg.EmbeddingDimension)
	}

	pooled := embeddings.NewPooledClient(backend, embeddings.PoolConfig{
		Workers:    cfg.EmbeddingWorkers,
		QueueDepth: cfg.EmbeddingQueueDepth,
		BatchSize:  cfg.EmbeddingBatchSize,
	})

	encoder, err := embeddings.NewCachingClient(pooled)
	if err != nil {
		return nil, fmt.Errorf("create caching client: %w", err)
	}

	return encoder, nil
}

// NewApp builds and wires all components. It does not start the HTTP server
// or River; call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		meterProvider  observability.MeterProviderShutdown
		metricsHandler http.Handler
	)

	var (
		embeddingMetrics observability.EmbeddingMetrics
		requestMetrics   observability.RequestMetrics
	)

	if cfg.MetricsEnabled {
		provider, handler, m, err := observability.NewMeterProvider(ctx, observability.MeterProviderConfig{})
		if err != nil {
			return nil, fmt.Errorf("create meter provider: %w", err)
		}

		meterProvider = provider
		metricsHandler = handler

		embeddingMetrics, err = observability.NewEmbeddingMetrics(m)
		if err != nil {
			return nil, fmt.Errorf("create embedding metrics: %w", err)
		}

		requestMetrics, err = observability.NewRequestMetrics(m)
		if err != nil {
			return nil, fmt.Errorf("create request metrics: %w", err)
		}
	} else {
		slog.Warn("metrics not enabled (METRICS_ENABLED=false)")
	}

	cardsRepo := repository.NewCardsRepository(db)
	embeddingsRepo := repository.NewEmbeddingsRepository(db)

	encoder, err := newEncoder(cfg)
	if err != nil {
		return nil, err
	}

	if err := service.VerifyEmbeddingSetup(ctx, cfg.EmbeddingDimension, encoder, embeddingsRepo); err != nil {
		return nil, err
	}

	pipeline := service.NewEmbeddingPipeline(service.PipelineParams{
		Encoder:       encoder,
		Store:         embeddingsRepo,
		Cards:         cardsRepo,
		Variants:      cfg.EmbeddingVariants,
		MaxConcurrent: cfg.EmbeddingWorkers,
		Metrics:       embeddingMetrics,
	})

	searchService := service.NewSearchService(service.SearchParams{
		Encoder:    encoder,
		Index:      embeddingsRepo,
		Cards:      cardsRepo,
		CacheStats: encoder,
		Model:      cfg.EmbeddingModel,
		Metrics:    embeddingMetrics,
	})

	var limiter *rate.Limiter
	if cfg.EmbeddingRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbeddingRateLimit), 1)
	}

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewCardEmbeddingWorker(pipeline, limiter, embeddingMetrics))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			service.EmbeddingsQueueName: {MaxWorkers: cfg.EmbeddingWorkers},
		},
		Workers:      riverWorkers,
		ErrorHandler: &workers.ErrorHandler{},
	})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	enqueuer := service.NewEmbeddingEnqueuer(service.EnqueuerParams{
		Inserter:    riverClient,
		MaxAttempts: cfg.EmbeddingMaxAttempts,
		Metrics:     embeddingMetrics,
	})

	ankiClient := anki.NewClientWithOptions(anki.ClientOptions{
		BaseURL: cfg.AnkiConnectURL,
		Timeout: time.Duration(cfg.AnkiTimeoutSeconds) * time.Second,
	})

	syncService := anki.NewSyncService(anki.SyncParams{
		Notes:    ankiClient,
		Cards:    cardsRepo,
		Enqueuer: enqueuer,
	})

	server := newHTTPServer(cfg, serverHandlers{
		health:     handlers.NewHealthHandler(db),
		embeddings: handlers.NewEmbeddingsHandler(pipeline, searchService),
		search:     handlers.NewSearchHandler(searchService),
		cards:      handlers.NewCardsHandler(cardsRepo),
		sync:       handlers.NewSyncHandler(syncService),
	}, requestMetrics, metricsHandler)

	return &App{
		cfg:           cfg,
		db:            db,
		server:        server,
		river:         riverClient,
		meterProvider: meterProvider,
	}, nil
}

// serverHandlers groups the HTTP handlers for newHTTPServer.
type serverHandlers struct {
	health     *handlers.HealthHandler
	embeddings *handlers.EmbeddingsHandler
	search     *handlers.SearchHandler
	cards      *handlers.CardsHandler
	sync       *handlers.SyncHandler
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and
// /metrics, API key on /v1/).
// Handler chain: RequestID -> Metrics -> otelhttp -> MaxBody -> Logging -> mux.
func newHTTPServer(
	cfg *config.Config,
	h serverHandlers,
	requestMetrics observability.RequestMetrics,
	metricsHandler http.Handler,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", h.health.Check)
	public.HandleFunc("GET /health/ready", h.health.Ready)

	if metricsHandler != nil {
		public.Handle("GET /metrics", metricsHandler)
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/embeddings/generate", h.embeddings.Generate)
	protected.HandleFunc("GET /v1/embeddings/stats", h.embeddings.Stats)

	protected.HandleFunc("POST /v1/cards/search/semantic", h.search.SemanticSearch)

	protected.HandleFunc("GET /v1/cards", h.cards.List)
	protected.HandleFunc("GET /v1/cards/{id}", h.cards.Get)
	protected.HandleFunc("DELETE /v1/cards/{id}", h.cards.Delete)

	protected.HandleFunc("POST /v1/sync", h.sync.Sync)

	protectedWithAuth := middleware.Auth(cfg.APIKey)(protected)
	mux := http.NewServeMux()
	mux.Handle("/v1/", protectedWithAuth)
	mux.Handle("/", public)

	// Logging runs innermost so access logs carry the request id from context.
	var handler http.Handler = middleware.Logging(mux)
	handler = middleware.MaxBody(cfg.MaxRequestBodyBytes, requestMetrics)(handler)
	handler = otelhttp.NewHandler(handler, "lingodeck-api",
		// Skip tracing and HTTP metrics for health checks to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	)
	handler = middleware.Metrics(requestMetrics)(handler)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 60 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled
// (e.g. signal) or a component fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// Shutdown stops the server and River in order. Call after Run returns.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		if a.meterProvider == nil {
			return
		}

		if mpErr := a.meterProvider.Shutdown(ctx); mpErr != nil {
			if err == nil {
				err = mpErr
			} else {
				slog.Error("shutdown meter provider", "error", mpErr)
			}
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
