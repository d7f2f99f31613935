// Package geocode resolves UK postcodes to WGS 84 points.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"propdata/internal/config"
	"propdata/internal/logger"
	"propdata/internal/models"
)

// ErrPostcodeNotFound is returned by Lookup when a postcode cannot be resolved.
var ErrPostcodeNotFound = errors.New("postcode not found")

// Geocoder resolves postcodes. LookupMany returns only the postcodes it could
// resolve, keyed by utils.NormalizePostcode of the input.
type Geocoder interface {
	Lookup(ctx context.Context, postcode string) (models.Point, error)
	LookupMany(ctx context.Context, postcodes []string) (map[string]models.Point, error)
}

// New builds the geocoder selected by cfg.Geocoder.
func New(ctx context.Context, cfg *config.Config, client *http.Client, logr *logger.Logger) (Geocoder, error) {
	switch cfg.Geocoder {
	case "", "geonames":
		return LoadGeoNames(ctx, cfg.GeoNamesPath, cfg.GeoNamesURL, client, logr)
	case "postcodesio":
		return NewPostcodesIO(cfg.PostcodesIOURL, client, cfg.GeocodeCacheSize), nil
	default:
		return nil, fmt.Errorf("unknown geocoder %q", cfg.Geocoder)
	}
}
