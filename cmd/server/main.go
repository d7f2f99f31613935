package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propdata/internal/config"
	"propdata/internal/database"
	"propdata/internal/geocode"
	"propdata/internal/logger"
	"propdata/internal/metrics"
	mdlwr "propdata/internal/middleware"
	"propdata/internal/routes"
	"propdata/internal/services"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logr := logger.New(cfg, "api")
	defer logr.Sync()

	db, err := database.New(cfg.DatabaseURL, cfg, "api")
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	geo, err := geocode.New(ctx, cfg, httpClient, logr)
	if err != nil {
		logr.Fatal("failed to initialise geocoder", zap.Error(err))
	}

	m := metrics.New()
	geo = geocode.WithMetrics(geo, m.GeocodeLookups)

	limiters, closeLimiters := newLimiters(ctx, cfg, logr)
	defer closeLimiters()

	r := routes.NewRouter(
		services.NewSoldPriceService(db, geo),
		services.NewEPCService(db),
		limiters,
		m,
		cfg,
		logr,
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Info("server started", zap.String("port", cfg.Port), zap.String("geocoder", cfg.Geocoder))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Fatal("server forced to shutdown", zap.Error(err))
	}

	stop()
	logr.Info("server exited gracefully")
}

// newLimiters shares counters through Redis when REDIS_URL is set and keeps
// them in process memory otherwise.
func newLimiters(ctx context.Context, cfg *config.Config, logr *logger.Logger) (routes.Limiters, func()) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logr.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logr.Warn("redis unreachable, rate limits will fail open until it recovers", zap.Error(err))
		}
		logr.Info("using redis rate limiter")
		return routes.Limiters{
			Default:  mdlwr.NewRedisLimiter(client, cfg.RateLimitDefault, "ratelimit:default"),
			Property: mdlwr.NewRedisLimiter(client, cfg.RateLimitProperty, "ratelimit:property"),
		}, func() { _ = client.Close() }
	}

	def := mdlwr.NewMemoryLimiter(cfg.RateLimitDefault)
	prop := mdlwr.NewMemoryLimiter(cfg.RateLimitProperty)
	def.StartCleanup(ctx)
	prop.StartCleanup(ctx)
	return routes.Limiters{Default: def, Property: prop}, func() {}
}
