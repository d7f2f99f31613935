// Package loader ingests the Price Paid and EPC CSV files into the database.
package loader

import (
	"context"
	"fmt"
	"net/http"

	"propdata/internal/config"
	"propdata/internal/geocode"
	"propdata/internal/logger"
	"propdata/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence the loader needs. Each Insert call is one
// transaction: it either stores every row or none.
type Store interface {
	EnsureSchema(ctx context.Context) error
	CountPricePaid(ctx context.Context) (int, error)
	CountEPC(ctx context.Context) (int, error)
	PricePaidIDs(ctx context.Context) (map[string]struct{}, error)
	EPCKeys(ctx context.Context) (map[string]struct{}, error)
	InsertPricePaid(ctx context.Context, rows []models.PricePaid) error
	InsertEPC(ctx context.Context, rows []models.EPC) error
}

type Loader struct {
	cfg    *config.Config
	store  Store
	geo    geocode.Geocoder
	client *http.Client
	logr   *zap.Logger
	runID  string
}

func New(cfg *config.Config, store Store, geo geocode.Geocoder, client *http.Client, logr *logger.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	runID := uuid.NewString()
	return &Loader{
		cfg:    cfg,
		store:  store,
		geo:    geo,
		client: client,
		logr:   logr.With(zap.String("run_id", runID)),
		runID:  runID,
	}
}

// Run sets up the schema, loads Price Paid data when its table is empty and
// then loads any EPC certificates not yet stored. Schema and download
// failures abort the run; failed chunks are reported and skipped.
func (l *Loader) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: l.runID}

	l.logr.Info("ensuring schema")
	if err := l.store.EnsureSchema(ctx); err != nil {
		return report, fmt.Errorf("ensure schema: %w", err)
	}

	count, err := l.store.CountPricePaid(ctx)
	if err != nil {
		return report, fmt.Errorf("count price paid: %w", err)
	}
	if count > 0 {
		l.logr.Info("price paid data already present, skipping load", zap.Int("rows", count))
		report.PricePaid = DatasetReport{Skipped: true, SkipReason: "table not empty"}
	} else {
		pp, err := l.loadPricePaid(ctx)
		report.PricePaid = pp
		if err != nil {
			return report, err
		}
	}

	epc, err := l.loadEPC(ctx)
	report.EPC = epc
	if err != nil {
		return report, err
	}

	l.logSummary(ctx, report)
	return report, nil
}

func (l *Loader) logSummary(ctx context.Context, r *Report) {
	fields := []zap.Field{
		zap.Int("price_paid_inserted", r.PricePaid.Inserted()),
		zap.Int("price_paid_failed_chunks", r.PricePaid.FailedChunks()),
		zap.Int("epc_inserted", r.EPC.Inserted()),
		zap.Int("epc_failed_chunks", r.EPC.FailedChunks()),
	}
	if n, err := l.store.CountPricePaid(ctx); err == nil {
		fields = append(fields, zap.Int("price_paid_total", n))
	}
	if n, err := l.store.CountEPC(ctx); err == nil {
		fields = append(fields, zap.Int("epc_total", n))
	}
	l.logr.Info("load complete", fields...)
}
