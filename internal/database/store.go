package database

import (
	"context"
	"fmt"

	"propdata/internal/models"

	"github.com/uptrace/bun"
)

// insertBatch bounds the size of a single INSERT statement. A loader chunk
// is split into several statements that share one transaction.
const insertBatch = 5000

// Store is the write side used by the loader.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return EnsureSchema(ctx, s.db)
}

func (s *Store) CountPricePaid(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*models.PricePaid)(nil)).Count(ctx)
}

func (s *Store) CountEPC(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*models.EPC)(nil)).Count(ctx)
}

// PricePaidIDs returns every transaction id already stored.
func (s *Store) PricePaidIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*models.PricePaid)(nil)).
		Column("transaction_id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("load transaction ids: %w", err)
	}
	return toSet(ids), nil
}

// EPCKeys returns every certificate key already stored.
func (s *Store) EPCKeys(ctx context.Context) (map[string]struct{}, error) {
	var keys []string
	err := s.db.NewSelect().
		Model((*models.EPC)(nil)).
		Column("lmk_key").
		Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("load lmk keys: %w", err)
	}
	return toSet(keys), nil
}

// InsertPricePaid writes rows in one transaction; nothing is kept on error.
// RETURNING is disabled: nullzero columns would otherwise turn the insert into
// a query that scans defaults back into the batch.
func (s *Store) InsertPricePaid(ctx context.Context, rows []models.PricePaid) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(rows); start += insertBatch {
			batch := rows[start:min(start+insertBatch, len(rows))]
			if _, err := tx.NewInsert().Model(&batch).Returning("NULL").Exec(ctx); err != nil {
				return fmt.Errorf("insert price paid rows %d-%d: %w", start, start+len(batch), err)
			}
		}
		return nil
	})
}

// InsertEPC writes rows in one transaction; nothing is kept on error.
func (s *Store) InsertEPC(ctx context.Context, rows []models.EPC) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(rows); start += insertBatch {
			batch := rows[start:min(start+insertBatch, len(rows))]
			if _, err := tx.NewInsert().Model(&batch).Returning("NULL").Exec(ctx); err != nil {
				return fmt.Errorf("insert epc rows %d-%d: %w", start, start+len(batch), err)
			}
		}
		return nil
	})
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
