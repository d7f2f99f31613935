package database

import (
	"context"
	"fmt"

	"propdata/internal/models"

	"github.com/uptrace/bun"
)

var indexes = []struct {
	name, table, using string
	columns            []string
}{
	{"idx_price_paid_data_location", "price_paid_data", "GIST", []string{"location"}},
	{"idx_price_paid_data_street", "price_paid_data", "", []string{"street"}},
	{"idx_price_paid_data_postcode", "price_paid_data", "", []string{"postcode"}},
	{"idx_epc_data_postcode", "epc_data", "", []string{"postcode"}},
	{"idx_epc_data_uprn", "epc_data", "", []string{"uprn"}},
}

// EnsureSchema enables PostGIS and creates both tables and their indexes when
// they do not exist yet. It is safe to run on every start.
func EnsureSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("enable postgis: %w", err)
	}

	for _, model := range []any{(*models.PricePaid)(nil), (*models.EPC)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	for _, idx := range indexes {
		q := db.NewCreateIndex().
			Table(idx.table).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists()
		if idx.using != "" {
			q = q.Using(idx.using)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
