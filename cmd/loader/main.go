package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"propdata/internal/config"
	"propdata/internal/database"
	"propdata/internal/geocode"
	"propdata/internal/loader"
	"propdata/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logr := logger.New(cfg, "loader")
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.DatabaseURL, cfg, "loader")
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// no client timeout: the Price Paid file is several gigabytes
	httpClient := &http.Client{}

	geo, err := geocode.New(ctx, cfg, httpClient, logr)
	if err != nil {
		logr.Fatal("failed to initialise geocoder", zap.Error(err))
	}

	l := loader.New(cfg, database.NewStore(db), geo, httpClient, logr)
	report, err := l.Run(ctx)
	if err != nil {
		logr.Error("load aborted", zap.String("run_id", report.RunID), zap.Error(err))
		_ = db.Close()
		logr.Sync()
		os.Exit(1)
	}
}
