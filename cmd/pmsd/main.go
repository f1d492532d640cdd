package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novadent/pms-adapter/internal/config"
	"github.com/novadent/pms-adapter/internal/http/handlers"
	httpmiddleware "github.com/novadent/pms-adapter/internal/http/middleware"
	"github.com/novadent/pms-adapter/internal/observability/metrics"
	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/internal/pms/factory"
	"github.com/novadent/pms-adapter/internal/pms/pipeline"
	"github.com/novadent/pms-adapter/pkg/logging"
)

func main() {
	// .env is for local development; production injects real env vars.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pms-adapter",
		"env", cfg.Env,
		"port", cfg.Port,
		"vendor", cfg.PMSVendor,
	)

	vendor, err := pms.ParseVendor(cfg.PMSVendor)
	if err != nil {
		logger.Error("invalid PMS_VENDOR", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	adapterMetrics := metrics.NewAdapterMetrics(registry)

	adapter, err := factory.New(pms.OfficeConfig{
		OfficeID: cfg.OfficeID,
		Vendor:   vendor,
		BaseURL:  cfg.PMSBaseURL,
		Credentials: pms.Credentials{
			ClientID:     cfg.CareStackClientID,
			ClientSecret: cfg.CareStackClientSecret,
			PracticeCode: cfg.EaglesoftPracticeCode,
			APIKey:       cfg.EaglesoftAPIKey,
		},
		UseMockMode: cfg.UseMockPMS,
		MockSeed:    cfg.MockPMSSeed,
	}, factory.Deps{
		Logger:  logger,
		Metrics: adapterMetrics,
		Pipeline: pipeline.Settings{
			FailureThreshold:  uint32(cfg.BreakerFailureThreshold),
			Cooldown:          cfg.BreakerCooldown,
			RequestsPerMinute: cfg.RateLimitPerMinute,
			MaxWait:           cfg.RateLimitMaxWait,
			RetryAttempts:     cfg.RetryAttempts,
			RetryBaseDelay:    cfg.RetryBaseDelay,
		},
		CacheTTL: cfg.ReferenceCacheTTL,
	})
	if err != nil {
		logger.Error("failed to build PMS adapter", "error", err)
		os.Exit(1)
	}
	logger.Info("PMS adapter ready", "adapter", adapter.Name(), "office", cfg.OfficeID)

	pmsHandler := handlers.NewPMSHandler(adapter, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Mount("/v1", pmsHandler.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
