package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/classyid/whatsapp-api-frontend/internal/config"
	"github.com/classyid/whatsapp-api-frontend/internal/logging"
	"github.com/classyid/whatsapp-api-frontend/internal/proxy"
	"github.com/classyid/whatsapp-api-frontend/internal/whatsapp"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context, envFiles []string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, poller, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if poller != nil {
		poller.Start()
		defer poller.Stop()
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("api_url", cfg.API.BaseURL()).
			Str("version", version).
			Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildServer wires every component and returns the root handler. The poller
// is nil when background polling is disabled. ctx bounds the rate limiter's
// sweep goroutine.
func buildServer(ctx context.Context, cfg config.Config, logger zerolog.Logger) (http.Handler, *whatsapp.Poller, error) {
	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := proxy.NewMetrics(reg)
	if err != nil {
		return nil, nil, err
	}

	// --- Remote API ---
	client := whatsapp.NewClient(cfg.API, logger)
	monitor := whatsapp.NewMonitor(cfg.API, logger)

	var poller *whatsapp.Poller
	if cfg.StatusPoll != "" {
		poller, err = whatsapp.NewPoller(monitor, cfg.StatusPoll, cfg.API.StatusTimeout, metrics.SetRemote, logger)
		if err != nil {
			return nil, nil, err
		}
	}

	// --- Proxy module wiring ---
	uploads, err := proxy.NewUploadStore(cfg.UploadDir)
	if err != nil {
		return nil, nil, err
	}
	svc := proxy.NewService(client, cfg.DefaultCountryCode, metrics, logger)
	h := proxy.NewHandler(svc, monitor, uploads, metrics, proxy.Options{
		Version:        version,
		APIURL:         client.BaseURL(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
	}))

	var apiMiddleware []func(http.Handler) http.Handler
	if cfg.RateLimitRPM > 0 {
		apiMiddleware = append(apiMiddleware, proxy.RateLimit(ctx, cfg.RateLimitRPM, cfg.RateLimitBurst))
	}
	proxy.RegisterRoutes(r, h, apiMiddleware...)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r, poller, nil
}
