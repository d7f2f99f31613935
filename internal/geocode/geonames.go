package geocode

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"propdata/internal/logger"
	"propdata/internal/models"
	"propdata/internal/utils"

	"go.uber.org/zap"
)

// GeoNames column positions in the tab-separated postal code export.
const (
	gnPostcode  = 1
	gnLatitude  = 9
	gnLongitude = 10
	gnMinFields = 11
)

// GeoNames is an offline postcode table built from the GeoNames GB postal
// code export. Lookups never leave the process.
type GeoNames struct {
	points map[string]models.Point
}

// LoadGeoNames reads the table at path, downloading and unpacking the GeoNames
// archive first when the file does not exist.
func LoadGeoNames(ctx context.Context, path, archiveURL string, client *http.Client, logr *logger.Logger) (*GeoNames, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logr.Info("geonames table missing, downloading", zap.String("url", archiveURL), zap.String("path", path))
		if err := fetchGeoNames(ctx, client, archiveURL, path); err != nil {
			return nil, fmt.Errorf("fetch geonames: %w", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := ParseGeoNames(f)
	if err != nil {
		return nil, fmt.Errorf("parse geonames %s: %w", path, err)
	}
	logr.Info("geonames table loaded", zap.Int("postcodes", g.Len()))
	return g, nil
}

// ParseGeoNames builds a table from the tab-separated export. Postcodes that
// appear more than once resolve to the mean of their coordinates.
func ParseGeoNames(r io.Reader) (*GeoNames, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	type acc struct {
		lat, lon float64
		n        int
	}
	sums := make(map[string]*acc)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < gnMinFields {
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec[gnLatitude]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(rec[gnLongitude]), 64)
		if errLat != nil || errLon != nil {
			continue
		}
		key := utils.NormalizePostcode(rec[gnPostcode])
		if key == "" {
			continue
		}
		a, ok := sums[key]
		if !ok {
			a = &acc{}
			sums[key] = a
		}
		a.lat += lat
		a.lon += lon
		a.n++
	}

	points := make(map[string]models.Point, len(sums))
	for k, a := range sums {
		points[k] = models.Point{Lon: a.lon / float64(a.n), Lat: a.lat / float64(a.n)}
	}
	return &GeoNames{points: points}, nil
}

// Len reports how many postcodes the table knows.
func (g *GeoNames) Len() int { return len(g.points) }

func (g *GeoNames) Lookup(_ context.Context, postcode string) (models.Point, error) {
	p, ok := g.points[utils.NormalizePostcode(postcode)]
	if !ok {
		return models.Point{}, ErrPostcodeNotFound
	}
	return p, nil
}

func (g *GeoNames) LookupMany(_ context.Context, postcodes []string) (map[string]models.Point, error) {
	out := make(map[string]models.Point, len(postcodes))
	for _, pc := range postcodes {
		key := utils.NormalizePostcode(pc)
		if p, ok := g.points[key]; ok {
			out[key] = p
		}
	}
	return out, nil
}

// fetchGeoNames downloads the zip archive and extracts its .txt member to dst.
func fetchGeoNames(ctx context.Context, client *http.Client, archiveURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, archiveURL)
	}

	tmp, err := os.CreateTemp("", "geonames-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return err
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return err
	}
	for _, zf := range zr.File {
		if !strings.EqualFold(filepath.Ext(zf.Name), ".txt") || strings.EqualFold(zf.Name, "readme.txt") {
			continue
		}
		return extractTo(zf, dst)
	}
	return fmt.Errorf("no postal code table in %s", archiveURL)
}

func extractTo(zf *zip.File, dst string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(part)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return err
	}
	return os.Rename(part, dst)
}
