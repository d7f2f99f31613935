package routes

import (
	"encoding/json"
	"net/http"

	"propdata/internal/config"
	"propdata/internal/handlers"
	"propdata/internal/logger"
	"propdata/internal/metrics"
	mdlwr "propdata/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Limiters holds the rate limiter for the property endpoints and the one
// applied to every other route.
type Limiters struct {
	Default  mdlwr.Limiter
	Property mdlwr.Limiter
}

func NewRouter(
	soldPrices handlers.SoldPriceSearcher,
	epc handlers.EPCFinder,
	limiters Limiters,
	m *metrics.Metrics,
	cfg *config.Config,
	logr *logger.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mdlwr.RequestLogger(logr.Logger))
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", cfg.APIKeyName},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	onReject := func(name string) {
		m.RateLimitedTotal.WithLabelValues(name).Inc()
	}

	propertyHandler := handlers.NewPropertyHandler(soldPrices, epc, logr.Logger)

	defaultLimit := mdlwr.RateLimit("default", limiters.Default, onReject, logr.Logger)

	// set before any Route so sub-routers inherit them
	r.NotFound(defaultLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})).ServeHTTP)
	r.MethodNotAllowed(defaultLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(defaultLimit)

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.Method(http.MethodGet, "/metrics", m.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/property", func(r chi.Router) {
			// credential check first so a bad key never spends rate budget
			r.Use(mdlwr.APIKey(cfg.APIKeyName, cfg.APIKey, logr.Logger))

			// inline group: the limiter runs after routing and keys on the
			// matched endpoint
			r.Group(func(r chi.Router) {
				r.Use(mdlwr.RateLimit("property", limiters.Property, onReject, logr.Logger))

				r.Get("/sold-prices", propertyHandler.GetSoldPrices)
				r.Get("/epc", propertyHandler.GetEPC)
			})
		})
	})

	return r
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
