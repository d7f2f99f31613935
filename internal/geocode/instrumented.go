package geocode

import (
	"context"
	"errors"

	"propdata/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

type instrumented struct {
	next    Geocoder
	lookups *prometheus.CounterVec
}

// WithMetrics counts single lookups by outcome label: hit, miss or error.
func WithMetrics(g Geocoder, lookups *prometheus.CounterVec) Geocoder {
	return &instrumented{next: g, lookups: lookups}
}

func (i *instrumented) Lookup(ctx context.Context, postcode string) (models.Point, error) {
	p, err := i.next.Lookup(ctx, postcode)
	switch {
	case err == nil:
		i.lookups.WithLabelValues("hit").Inc()
	case errors.Is(err, ErrPostcodeNotFound):
		i.lookups.WithLabelValues("miss").Inc()
	default:
		i.lookups.WithLabelValues("error").Inc()
	}
	return p, err
}

func (i *instrumented) LookupMany(ctx context.Context, postcodes []string) (map[string]models.Point, error) {
	return i.next.LookupMany(ctx, postcodes)
}
