package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"propdata/internal/geocode"
	"propdata/internal/models"

	"github.com/uptrace/bun"
)

const (
	// MaxResults caps both property queries.
	MaxResults      = 100
	DefaultRadiusKm = 1.0
)

type SoldPriceService struct {
	db  *bun.DB
	geo geocode.Geocoder
}

func NewSoldPriceService(db *bun.DB, geo geocode.Geocoder) *SoldPriceService {
	return &SoldPriceService{db: db, geo: geo}
}

// Search returns up to MaxResults sales within params.RadiusKm of the
// postcode centre, most recent transfer first.
func (s *SoldPriceService) Search(ctx context.Context, params models.SoldPriceQueryParams) ([]models.PropertySoldPrice, error) {
	center, err := s.geo.Lookup(ctx, params.Postcode)
	if err != nil {
		if errors.Is(err, geocode.ErrPostcodeNotFound) {
			return nil, ErrPostcodeNotFound
		}
		return nil, fmt.Errorf("geocode %q: %w", params.Postcode, err)
	}

	radiusKm := params.RadiusKm
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}

	q := s.db.NewSelect().
		Column("pp.transaction_id", "pp.price", "pp.date_of_transfer", "pp.postcode",
			"pp.property_type", "pp.new_build_flag", "pp.tenure_type",
			"pp.paon", "pp.saon", "pp.street", "pp.locality",
			"pp.town_city", "pp.district", "pp.county").
		ColumnExpr("ST_Y(pp.location::geometry) AS latitude").
		ColumnExpr("ST_X(pp.location::geometry) AS longitude").
		TableExpr("price_paid_data AS pp").
		Where("ST_DWithin(pp.location, ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography, ?)",
			center.Lon, center.Lat, radiusKm*1000)

	if street := strings.TrimSpace(params.StreetName); street != "" {
		q = q.Where("pp.street ILIKE ?", "%"+escapeLike(street)+"%")
	}

	var rows []models.SoldPriceRow
	err = q.OrderExpr("pp.date_of_transfer DESC").
		Limit(MaxResults).
		Scan(ctx, &rows)
	if err != nil {
		return nil, &StorageError{Op: "query sold prices", Err: err}
	}

	out := make([]models.PropertySoldPrice, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToResponse())
	}
	return out, nil
}

// escapeLike makes user input match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
