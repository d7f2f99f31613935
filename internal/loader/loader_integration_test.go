//go:build integration

package loader

import (
	"context"
	"testing"
	"time"

	"propdata/internal/config"
	"propdata/internal/database"
	"propdata/internal/logger"
	"propdata/internal/models"
	"propdata/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
)

func setupPostGIS(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgis/postgis:16-3.4",
		postgres.WithDatabase("property_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second)),
	)
	require.NoError(t, err, "failed to start PostGIS container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.New(dsn, &config.Config{}, "loader")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

const integrationPricePaidCSV = `"T1","250000","2020-01-01 00:00","BH1 1AA","F","N","L","FLAT 2","","OLD CHRISTCHURCH ROAD","","BOURNEMOUTH","BOURNEMOUTH, CHRISTCHURCH AND POOLE","BOURNEMOUTH, CHRISTCHURCH AND POOLE","A","A"
"T9","410000","2022-03-03 00:00","BH23 1AA","D","N","F","4","","CASTLE STREET","","CHRISTCHURCH","BOURNEMOUTH, CHRISTCHURCH AND POOLE","BOURNEMOUTH, CHRISTCHURCH AND POOLE","A","A"
`

func TestLoaderAgainstPostGIS(t *testing.T) {
	db := setupPostGIS(t)
	ctx := context.Background()

	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "pp-complete.csv", integrationPricePaidCSV)
	writeFile(t, dir, "certificates.csv", epcCSV)

	geo := mapGeocoder{
		"BH11AA": {Lon: -1.8795, Lat: 50.7222},
		// Christchurch, roughly 7km east
		"BH231AA": {Lon: -1.7780, Lat: 50.7355},
	}
	store := database.NewStore(db)

	first, err := New(cfg, store, geo, nil, logger.Nop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.PricePaid.Inserted())
	assert.Equal(t, 2, first.EPC.Inserted())

	second, err := New(cfg, store, geo, nil, logger.Nop()).Run(ctx)
	require.NoError(t, err)
	assert.True(t, second.PricePaid.Skipped)
	assert.Equal(t, 0, second.EPC.Inserted())

	n, err := store.CountEPC(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sold, err := services.NewSoldPriceService(db, geo).Search(ctx, models.SoldPriceQueryParams{
		Postcode: "BH1 1AA",
		RadiusKm: 1.0,
	})
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.Equal(t, int64(250000), sold[0].Price)
	assert.Equal(t, "2020-01-01", sold[0].DateOfTransfer)
	assert.InDelta(t, 50.7222, sold[0].Latitude, 1e-6)

	wide, err := services.NewSoldPriceService(db, geo).Search(ctx, models.SoldPriceQueryParams{
		Postcode: "BH1 1AA",
		RadiusKm: 10,
	})
	require.NoError(t, err)
	require.Len(t, wide, 2)
	assert.Equal(t, "T9", wide[0].TransactionID)

	epcSvc := services.NewEPCService(db)
	lower, err := epcSvc.ByPostcode(ctx, "bh1 1aa")
	require.NoError(t, err)
	upper, err := epcSvc.ByPostcode(ctx, "BH1 1AA")
	require.NoError(t, err)
	assert.Equal(t, upper, lower)
	require.Len(t, lower, 2)
	assert.Equal(t, "2023-01-02", lower[0].LodgementDate)
}
