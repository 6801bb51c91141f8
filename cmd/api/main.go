package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/urlchecker/internal/cache"
	"github.com/hamed0406/urlchecker/internal/config"
	"github.com/hamed0406/urlchecker/internal/httpapi"
	"github.com/hamed0406/urlchecker/internal/logging"
	"github.com/hamed0406/urlchecker/internal/notify"
	"github.com/hamed0406/urlchecker/internal/probe"
	"github.com/hamed0406/urlchecker/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// a missing reputation key is not fatal; say so once here
	for _, e := range multierr.Errors(cfg.Validate()) {
		if errors.Is(e, config.ErrMissingReputationKey) {
			logger.Warn("config_warning", zap.Error(e))
			continue
		}
		logger.Fatal("config_invalid", zap.Error(e))
	}

	metrics, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		logger.Fatal("telemetry_setup", zap.Error(err))
	}
	defer func() {
		if err := metrics.Close(context.Background()); err != nil {
			logger.Warn("telemetry_close", zap.Error(err))
		}
	}()

	reputation := probe.NewReputationProbe(cfg.VirusTotalAPIKey, cfg.VirusTotalBaseURL, cfg.ReputationTimeout).
		WithRateLimit(cfg.ReputationRPM)
	if len(cfg.MemcachedServers) > 0 {
		rc, err := cache.NewMemcached(cfg.MemcachedServers, cfg.ReputationCacheTTL, logger)
		if err != nil {
			logger.Warn("reputation_cache_disabled", zap.Error(err))
		} else {
			defer rc.Close()
			reputation.Cache = rc
		}
	}

	checker := probe.NewURLChecker(logger,
		probe.NewHTTPChecker(cfg.HTTPTimeout, cfg.UserAgent),
		probe.NewDNSResolver(cfg.DNSTimeout),
		probe.NewCertProbe(cfg.TLSTimeout),
		reputation,
	)
	checker.Metrics = metrics

	api := httpapi.NewServer(logger, probe.NewBatchRunner(logger, checker), cfg.MaxBatchSize)
	api.Metrics = metrics
	if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
		api.Notifier = slack
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(httpapi.Options{
			APIKeys:        cfg.APIKeys,
			AllowedOrigins: cfg.AllowedOrigins,
			RPM:            cfg.PublicRPM,
			Burst:          cfg.PublicBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api_listen_error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("api_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	logger.Info("api_stopped")
}
