package handlers

import (
	"context"
	"errors"
	"net/http"

	"propdata/internal/models"
	"propdata/internal/services"
	"propdata/internal/utils"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type SoldPriceSearcher interface {
	Search(ctx context.Context, params models.SoldPriceQueryParams) ([]models.PropertySoldPrice, error)
}

type EPCFinder interface {
	ByPostcode(ctx context.Context, postcode string) ([]models.PropertyEPC, error)
}

type PropertyHandler struct {
	soldPrices SoldPriceSearcher
	epc        EPCFinder
	logr       *zap.Logger
}

func NewPropertyHandler(soldPrices SoldPriceSearcher, epc EPCFinder, logr *zap.Logger) *PropertyHandler {
	return &PropertyHandler{soldPrices: soldPrices, epc: epc, logr: logr}
}

// GetSoldPrices handles GET /api/v1/property/sold-prices
func (h *PropertyHandler) GetSoldPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	postcode := utils.QueryString(q, "postcode")
	if postcode == "" {
		writeDetail(w, http.StatusBadRequest, "postcode is required")
		return
	}

	radius, err := utils.QueryFloat(q, "radius_km", services.DefaultRadiusKm)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if radius <= 0 {
		writeDetail(w, http.StatusBadRequest, "radius_km must be positive")
		return
	}

	results, err := h.soldPrices.Search(r.Context(), models.SoldPriceQueryParams{
		Postcode:   postcode,
		RadiusKm:   radius,
		StreetName: utils.QueryString(q, "street_name"),
	})
	if err != nil {
		if errors.Is(err, services.ErrPostcodeNotFound) {
			writeDetail(w, http.StatusNotFound, "Postcode not found or invalid.")
			return
		}
		h.internalError(w, r, "failed to query sold prices", err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// GetEPC handles GET /api/v1/property/epc
func (h *PropertyHandler) GetEPC(w http.ResponseWriter, r *http.Request) {
	postcode := utils.QueryString(r.URL.Query(), "postcode")
	if postcode == "" {
		writeDetail(w, http.StatusBadRequest, "postcode is required")
		return
	}

	results, err := h.epc.ByPostcode(r.Context(), postcode)
	if err != nil {
		h.internalError(w, r, "failed to query epc data", err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

func (h *PropertyHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	}
	var se *services.StorageError
	if errors.As(err, &se) {
		fields = append(fields, zap.String("op", se.Op))
	}
	h.logr.Error(msg, fields...)
	writeDetail(w, http.StatusInternalServerError, "Internal server error during data retrieval.")
}
