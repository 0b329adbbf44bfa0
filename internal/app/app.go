// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/paleoapi/compositegw/internal/config"
	"github.com/paleoapi/compositegw/internal/diagnostics"
	diagmemory "github.com/paleoapi/compositegw/internal/diagnostics/memory"
	diagpubsub "github.com/paleoapi/compositegw/internal/diagnostics/pubsub"
	"github.com/paleoapi/compositegw/internal/logging"
	"github.com/paleoapi/compositegw/internal/metrics"
	"github.com/paleoapi/compositegw/internal/policy/ratelimit"
	"github.com/paleoapi/compositegw/internal/progress"
	"github.com/paleoapi/compositegw/internal/progress/sinks"
	"github.com/paleoapi/compositegw/internal/storage/gcs"
	"github.com/paleoapi/compositegw/internal/storage/local"
	"github.com/paleoapi/compositegw/internal/storage/memory"
	"github.com/paleoapi/compositegw/internal/store"
	storememory "github.com/paleoapi/compositegw/internal/store/memory"
	storepostgres "github.com/paleoapi/compositegw/internal/store/postgres"
)

// App holds all the shared, long-lived services for the application.
// It acts as a dependency injection (DI) container, holding instances of
// services like the logger, the ruleset repository, the response
// archiver, the per-host rate limiter, and the diagnostics event hub.
// This struct is initialized once at startup and passed to the
// components that need it.
type App struct {
	Logger    *zap.Logger
	Config    config.Config
	Rulesets  store.RulesetRepository
	Archiver  diagnostics.Archiver
	RateLimit *ratelimit.Limiter
	Progress  *progress.Hub

	closers []func() error
}

// GetLogger returns the shared zap logger instance for request-scoped logging.
func (a *App) GetLogger() *zap.Logger {
	return a.Logger
}

// GetRulesets exposes the configured ruleset repository.
func (a *App) GetRulesets() store.RulesetRepository {
	return a.Rulesets
}

// GetArchiver exposes the configured response archiver.
func (a *App) GetArchiver() diagnostics.Archiver {
	return a.Archiver
}

// GetRateLimiter exposes the per-upstream-host rate limiter.
func (a *App) GetRateLimiter() *ratelimit.Limiter {
	return a.RateLimit
}

// GetProgress exposes the diagnostics event hub.
func (a *App) GetProgress() *progress.Hub {
	return a.Progress
}

// NewApp creates and initializes a new App struct based on the application's configuration.
// It is the central point for service initialization. It reads configuration values from Viper
// and instantiates the appropriate providers (e.g., GCS for archiving, Postgres for the ruleset
// store, Pub/Sub for diagnostics). This function is designed to fail fast if any critical
// service cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	l, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	l.Info("Initializing application services...")

	metrics.Init()

	a := &App{Logger: l, Config: cfg}

	rulesets, closeRulesets, err := newRulesetRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ruleset store: %w", err)
	}
	a.Rulesets = rulesets
	if closeRulesets != nil {
		a.closers = append(a.closers, closeRulesets)
	}

	archiver, err := newArchiver(ctx, l, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archiver: %w", err)
	}
	a.Archiver = archiver

	a.RateLimit = ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.DefaultRPS,
		DefaultBurst: cfg.RateLimit.DefaultBurst,
	})

	hub, closeHub, err := newProgressHub(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize diagnostics hub: %w", err)
	}
	a.Progress = hub
	a.closers = append(a.closers, closeHub)

	l.Info("Application services initialized successfully.")
	return a, nil
}

// newRulesetRepository selects a Postgres-backed store when a DSN is
// configured, falling back to the fixed in-memory seed otherwise.
func newRulesetRepository(ctx context.Context, cfg config.Config) (store.RulesetRepository, func() error, error) {
	if cfg.Store.DSN == "" {
		return storememory.New(), nil, nil
	}
	repo, err := storepostgres.NewRulesetStore(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect ruleset store: %w", err)
	}
	return repo, func() error { repo.Close(); return nil }, nil
}

// newArchiver selects the response-archiving blob store per
// diagnostics.archiver_provider ("gcs", "local", "memory", or "none").
func newArchiver(ctx context.Context, l *zap.Logger, cfg config.Config) (diagnostics.Archiver, error) {
	provider := viper.GetString("diagnostics.archiver_provider")
	switch provider {
	case "gcs":
		if cfg.Diagnostics.GCSBucket == "" {
			return nil, fmt.Errorf("diagnostics.archiver_provider is 'gcs' but diagnostics.gcs_bucket is not set")
		}
		l.Info("Using GCS response archiver", zap.String("bucket", cfg.Diagnostics.GCSBucket))
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create GCS client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Diagnostics.GCSBucket})
	case "local":
		baseDir := viper.GetString("diagnostics.local_base_dir")
		l.Info("Using local filesystem response archiver", zap.String("base_dir", baseDir))
		return local.New(local.Config{BaseDir: baseDir})
	case "memory":
		l.Info("Using in-memory response archiver.")
		return memory.NewBlobStore(), nil
	case "", "none":
		l.Info("Response archiving disabled.")
		return diagnostics.NopArchiver{}, nil
	default:
		return nil, fmt.Errorf("unknown diagnostics.archiver_provider: %s", provider)
	}
}

// newProgressHub wires the always-on log and Prometheus diagnostics sinks
// plus an optional cross-service audit sink per
// diagnostics.publisher_provider ("pubsub", "memory", or "none").
func newProgressHub(ctx context.Context, cfg config.Config, l *zap.Logger) (*progress.Hub, func() error, error) {
	hubSinks := []progress.Sink{sinks.NewLogSink(l)}

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus diagnostics sink: %w", err)
	}
	hubSinks = append(hubSinks, promSink)

	publisherProvider := viper.GetString("diagnostics.publisher_provider")
	switch publisherProvider {
	case "pubsub":
		if cfg.Diagnostics.ProjectID == "" || cfg.Diagnostics.TopicName == "" {
			return nil, nil, fmt.Errorf("diagnostics.publisher_provider is 'pubsub' but project_id or topic_name is not set")
		}
		l.Info("Publishing diagnostics summaries to Pub/Sub", zap.String("topic", cfg.Diagnostics.TopicName))
		client, err := pubsub.NewClient(ctx, cfg.Diagnostics.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("create pubsub client: %w", err)
		}
		hubSinks = append(hubSinks, diagpubsub.New(client.Topic(cfg.Diagnostics.TopicName)))
	case "memory":
		l.Info("Recording diagnostics summaries in memory.")
		hubSinks = append(hubSinks, diagmemory.New())
	case "", "none":
	default:
		return nil, nil, fmt.Errorf("unknown diagnostics.publisher_provider: %s", publisherProvider)
	}

	hub := progress.NewHub(progress.Config{Logger: l}, hubSinks...)
	return hub, func() error { return hub.Close(context.Background()) }, nil
}

// Close gracefully shuts down all services in the App container.
// The serve command defers it once the App has been built.
func (a *App) Close() {
	a.Logger.Info("Shutting down application services...")
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.Logger.Warn("error closing application service", zap.Error(err))
		}
	}
	// Flushing the logger buffer is important to ensure all logs are written before the application exits.
	if err := a.Logger.Sync(); err != nil {
		// We can't do much here, as logging itself might be failing.
		// This is a best-effort attempt.
		a.Logger.Warn("Error syncing logger on shutdown", zap.Error(err))
	}
}
