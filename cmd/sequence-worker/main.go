package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leadcadencehq/leadcadence-backend/internal/accounts"
	"github.com/leadcadencehq/leadcadence-backend/internal/cron"
	"github.com/leadcadencehq/leadcadence-backend/internal/drafts"
	"github.com/leadcadencehq/leadcadence-backend/internal/engine"
	"github.com/leadcadencehq/leadcadence-backend/internal/enrollments"
	"github.com/leadcadencehq/leadcadence-backend/internal/executions"
	"github.com/leadcadencehq/leadcadence-backend/internal/leads"
	"github.com/leadcadencehq/leadcadence-backend/internal/rategate"
	scheduler "github.com/leadcadencehq/leadcadence-backend/internal/schedulers/engine"
	"github.com/leadcadencehq/leadcadence-backend/internal/sequences"
	"github.com/leadcadencehq/leadcadence-backend/pkg/bluesky"
	"github.com/leadcadencehq/leadcadence-backend/pkg/config"
	"github.com/leadcadencehq/leadcadence-backend/pkg/db"
	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
	"github.com/leadcadencehq/leadcadence-backend/pkg/metrics"
	"github.com/leadcadencehq/leadcadence-backend/pkg/migrate"
	"github.com/leadcadencehq/leadcadence-backend/pkg/outbox"
	"github.com/leadcadencehq/leadcadence-backend/pkg/ratelimit"
	"github.com/leadcadencehq/leadcadence-backend/pkg/redis"
	"github.com/leadcadencehq/leadcadence-backend/pkg/security"
)

const (
	schedulerLockName  = "sequence-tick"
	platformRateScope  = "bluesky:platform"
	opsShutdownTimeout = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sequence-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sequence-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sequence-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	connector, err := buildConnector(context.Background(), cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build platform connector", err)
		os.Exit(1)
	}

	executionsRepo := executions.NewRepository(dbClient.DB())
	gate, err := rategate.NewGate(executionsRepo, cfg.RateLimit)
	if err != nil {
		logg.Error(context.Background(), "failed to build rate gate", err)
		os.Exit(1)
	}

	stepEngine, err := engine.New(engine.Params{
		Logger:      logg,
		DB:          dbClient,
		Enrollments: enrollments.NewRepository(dbClient.DB()),
		Sequences:   sequences.NewRepository(dbClient.DB()),
		Executions:  executionsRepo,
		Leads:       leads.NewRepository(dbClient.DB()),
		Drafts:      drafts.NewRepository(dbClient.DB()),
		Gate:        gate,
		Connector:   connector,
		Outbox:      outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:     metrics.NewEngineMetrics(prometheus.DefaultRegisterer),
		Config:      cfg.Engine,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build step engine", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(schedulerLockName), cfg.Engine.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler lock", err)
		os.Exit(1)
	}

	tickService, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:   logg,
		Engine:   stepEngine,
		Lock:     lock,
		Interval: cfg.Engine.TickInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create tick scheduler", err)
		os.Exit(1)
	}

	opsServer := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: newOpsRouter(cfg, logg, []opsDependency{
			{name: "database", ping: dbClient},
			{name: "redis", ping: redisClient},
		}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sequence worker")

	errCh := make(chan error, 2)
	go func() {
		errCh <- tickService.Run(ctx)
	}()
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opsShutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "ops server shutdown failed", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "sequence worker stopped unexpectedly", runErr)
		os.Exit(1)
	}

	logg.Info(ctx, "sequence worker shutting down gracefully")
}

// buildConnector picks the platform connector for this deployment. Dry run
// short-circuits to the logging connector; otherwise credentials come from the
// stored social account when a project is configured, falling back to the
// handle and app password in the environment.
func buildConnector(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (engine.Connector, error) {
	if cfg.FeatureFlags.DryRun {
		logg.Info(ctx, "dry run enabled, platform actions will be suppressed")
		return bluesky.NewDryRunConnector(logg), nil
	}

	identifier := cfg.Bluesky.Handle
	appPassword := cfg.Bluesky.AppPassword
	host := cfg.Bluesky.Host

	if cfg.Bluesky.ProjectID != "" {
		projectID, err := uuid.Parse(cfg.Bluesky.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("parse bluesky project id: %w", err)
		}
		sealer, err := security.NewSealer(cfg.Security)
		if err != nil {
			return nil, fmt.Errorf("build secret sealer: %w", err)
		}
		accountsService, err := accounts.NewService(accounts.NewRepository(dbClient.DB()), sealer)
		if err != nil {
			return nil, fmt.Errorf("build accounts service: %w", err)
		}
		creds, err := accountsService.Credentials(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("resolve account credentials: %w", err)
		}
		identifier = creds.Identifier
		appPassword = creds.AppPassword
		if creds.Host != "" {
			host = creds.Host
		}
	}

	store, err := ratelimit.NewRedisStateStore(redisClient)
	if err != nil {
		return nil, fmt.Errorf("build limiter state store: %w", err)
	}
	limiter, err := ratelimit.New(ratelimit.Params{
		MaxRequests: cfg.RateLimit.PlatformLimit,
		Window:      cfg.RateLimit.PlatformWindow,
		JitterRange: cfg.RateLimit.PlatformJitter,
		Scope:       platformRateScope,
		Store:       store,
	})
	if err != nil {
		return nil, fmt.Errorf("build platform limiter: %w", err)
	}

	return bluesky.NewClient(
		bluesky.Credentials{Identifier: identifier, AppPassword: appPassword},
		bluesky.WithHost(host),
		bluesky.WithHTTPClient(&http.Client{Timeout: cfg.Bluesky.RequestTimeout}),
		bluesky.WithLimiter(limiter),
		bluesky.WithSessionGuard(redisClient),
	)
}
