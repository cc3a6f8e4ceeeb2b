package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/quota"
	"llm-gateway/internal/infrastructure/connector"
	"llm-gateway/internal/infrastructure/crontab"
	"llm-gateway/internal/infrastructure/database"
	"llm-gateway/internal/infrastructure/logger"
	"llm-gateway/internal/infrastructure/persistence"
	"llm-gateway/pkg/gateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.GetLogger().Fatal().Err(err).Msg("load config")
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.GetLogger().Fatal().Err(err).Msg("init logger")
	}
	log.Info().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("version", config.Version).
		Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := gateway.Options{
		ConnectorTimeout: cfg.ConnectorTimeout,
		Retry: connector.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseMS) * time.Millisecond,
			Jitter:      time.Duration(cfg.RetryJitterMS) * time.Millisecond,
		},
		IdleHandleTTL:      cfg.IdleHandleTTL,
		CacheTTL:           cfg.ClassificationCacheTTL,
		CoolOff:            cfg.HealthCoolOff,
		DefaultDailyLimit:  cfg.ProviderDailyLimitDefault,
		AnalyzerProviderID: cfg.AnalyzerProviderID,
		AnalyzerModel:      cfg.AnalyzerModel,
	}

	var quotaStore quota.Store
	if cfg.DatabaseURL != "" {
		db, err := database.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect database")
		}

		credStore := persistence.NewCredentialStore(db, cfg.CredentialSecret)
		qs := persistence.NewQuotaStore(db)
		usageRepo := persistence.NewUsageRepository(db)
		if cfg.AutoMigrate {
			if err := migrateAll(credStore, qs, usageRepo); err != nil {
				log.Fatal().Err(err).Msg("migrate schema")
			}
		}

		opts.Store = credStore
		opts.QuotaStore = qs
		opts.UsageRepository = usageRepo
		quotaStore = qs
	}

	g := gateway.New(opts)
	if err := bootstrap(ctx, g, cfg); err != nil {
		log.Fatal().Err(err).Msg("bootstrap providers")
	}
	if err := g.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start gateway")
	}

	ctab := crontab.NewCrontab(g.Registry(), g.QuotaTracker(), quotaStore, cfg.SweepInterval, cfg.QuotaFlushInterval)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return ctab.Run(egCtx)
	})
	eg.Go(func() error {
		return serveMetrics(egCtx, cfg.MetricsPort)
	})

	if err := eg.Wait(); err != nil {
		log.Fatal().Err(err).Msg("shutdown with error")
	}
	log.Info().Msg("shutdown complete")
}

// bootstrap registers the configured providers, models, and shared
// credentials before the catalog freezes.
func bootstrap(ctx context.Context, g *gateway.Gateway, cfg *config.Config) error {
	for _, entry := range cfg.ProviderBootstrapEntries() {
		provider := entry.Provider
		if err := g.RegisterProvider(ctx, &provider); err != nil {
			return fmt.Errorf("register provider %s: %w", provider.PublicID, err)
		}
		for _, m := range entry.Models {
			model := m
			if err := g.RegisterModel(ctx, &model); err != nil {
				return fmt.Errorf("register model %s/%s: %w", provider.PublicID, model.ModelID, err)
			}
		}
		if entry.APIKey != "" {
			err := g.SetSharedCredentials(ctx, provider.PublicID, gateway.Credential{
				APIKey:  entry.APIKey,
				BaseURL: provider.BaseURL,
			})
			if err != nil {
				return fmt.Errorf("set shared credentials for %s: %w", provider.PublicID, err)
			}
		}
	}

	for _, userID := range cfg.SharedCredentialUserIDs {
		if err := g.UseSharedCredentials(ctx, userID); err != nil {
			return fmt.Errorf("mark shared user %s: %w", userID, err)
		}
	}
	return nil
}

func migrateAll(credStore *persistence.CredentialStore, quotaStore *persistence.QuotaStore, usageRepo *persistence.UsageRepository) error {
	if err := credStore.Migrate(); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	if err := quotaStore.Migrate(); err != nil {
		return fmt.Errorf("quota counters: %w", err)
	}
	if err := usageRepo.Migrate(); err != nil {
		return fmt.Errorf("usage records: %w", err)
	}
	return nil
}

// serveMetrics exposes prometheus metrics and a liveness endpoint until ctx
// is canceled.
func serveMetrics(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
