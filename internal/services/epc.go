package services

import (
	"context"

	"propdata/internal/models"
	"propdata/internal/utils"

	"github.com/uptrace/bun"
)

type EPCService struct {
	db *bun.DB
}

func NewEPCService(db *bun.DB) *EPCService {
	return &EPCService{db: db}
}

// ByPostcode returns up to MaxResults certificates for the postcode, newest
// lodgement first. Matching ignores case and whitespace.
func (s *EPCService) ByPostcode(ctx context.Context, postcode string) ([]models.PropertyEPC, error) {
	var rows []models.EPC
	err := s.db.NewSelect().
		Model(&rows).
		Where("epc.postcode = ?", utils.NormalizePostcode(postcode)).
		OrderExpr("epc.lodgement_date DESC").
		Limit(MaxResults).
		Scan(ctx)
	if err != nil {
		return nil, &StorageError{Op: "query epc", Err: err}
	}

	out := make([]models.PropertyEPC, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToResponse())
	}
	return out, nil
}
