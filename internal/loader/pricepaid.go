package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"propdata/internal/models"
	"propdata/internal/utils"

	"go.uber.org/zap"
)

// Price Paid files carry no header; columns are positional.
const (
	ppTransactionID = iota
	ppPrice
	ppDateOfTransfer
	ppPostcode
	ppPropertyType
	ppNewBuildFlag
	ppTenureType
	ppPAON
	ppSAON
	ppStreet
	ppLocality
	ppTownCity
	ppDistrict
	ppCounty
	ppCategoryType
	ppRecordStatus

	ppMinFields = ppCounty + 1
)

var pricePaidDateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (l *Loader) loadPricePaid(ctx context.Context) (DatasetReport, error) {
	var rep DatasetReport
	path := l.cfg.PricePaidCSVPath

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		l.logr.Info("downloading price paid data", zap.String("url", l.cfg.PricePaidURL), zap.String("path", path))
		n, err := download(ctx, l.client, l.cfg.PricePaidURL, path)
		if err != nil {
			return rep, err
		}
		l.logr.Info("download complete", zap.Int64("bytes", n))
	} else {
		l.logr.Info("price paid csv already exists, skipping download", zap.String("path", path))
	}

	f, err := os.Open(path)
	if err != nil {
		return rep, fmt.Errorf("open price paid csv: %w", err)
	}
	defer f.Close()

	seen, err := l.store.PricePaidIDs(ctx)
	if err != nil {
		return rep, fmt.Errorf("load existing transaction ids: %w", err)
	}
	l.logr.Info("starting price paid load",
		zap.String("region_prefix", l.cfg.RegionPrefix),
		zap.Int("existing", len(seen)),
	)

	cr := newChunkReader(f, l.cfg.ChunkSize)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rows, err := cr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("read price paid csv: %w", err)
		}

		res := l.processPricePaidChunk(ctx, n, rows, seen)
		rep.Chunks = append(rep.Chunks, res)
	}
	rep.Malformed = cr.malformed

	l.logr.Info("price paid load finished",
		zap.Int("chunks", len(rep.Chunks)),
		zap.Int("inserted", rep.Inserted()),
		zap.Int("failed_chunks", rep.FailedChunks()),
		zap.Int("malformed_lines", rep.Malformed),
	)
	return rep, nil
}

func (l *Loader) processPricePaidChunk(ctx context.Context, n int, rows [][]string, seen map[string]struct{}) ChunkResult {
	res := ChunkResult{Dataset: DatasetPricePaid, Index: n, Read: len(rows)}

	batch := make([]models.PricePaid, 0)
	inChunk := make(map[string]struct{})
	for _, rec := range rows {
		if len(rec) < ppMinFields {
			res.Rejected++
			continue
		}
		postcode := strings.TrimSpace(rec[ppPostcode])
		if postcode == "" || !strings.HasPrefix(strings.ToUpper(postcode), l.cfg.RegionPrefix) {
			res.OutOfRegion++
			continue
		}
		id := strings.TrimSpace(rec[ppTransactionID])
		if _, ok := seen[id]; ok {
			res.SkippedExisting++
			continue
		}
		if _, ok := inChunk[id]; ok {
			res.SkippedExisting++
			continue
		}
		row, ok := transformPricePaid(rec)
		if !ok {
			res.Rejected++
			continue
		}
		inChunk[id] = struct{}{}
		batch = append(batch, row)
	}

	if len(batch) == 0 {
		return res
	}

	postcodes := make([]string, 0, len(batch))
	for _, r := range batch {
		postcodes = append(postcodes, r.Postcode)
	}
	points, err := l.geo.LookupMany(ctx, postcodes)
	if err != nil {
		res.Err = fmt.Errorf("geocode chunk: %w", err)
		l.logr.Error("price paid chunk geocoding failed, skipping chunk", append(res.fields(), zap.Error(err))...)
		return res
	}

	located := batch[:0]
	for _, r := range batch {
		p, ok := points[utils.NormalizePostcode(r.Postcode)]
		if !ok {
			res.Ungeocoded++
			continue
		}
		r.Location = &models.Point{Lon: p.Lon, Lat: p.Lat}
		located = append(located, r)
	}

	if len(located) == 0 {
		return res
	}

	if err := l.store.InsertPricePaid(ctx, located); err != nil {
		res.Err = err
		l.logr.Error("price paid chunk insert failed, skipping chunk", append(res.fields(), zap.Error(err))...)
		return res
	}
	for _, r := range located {
		seen[r.TransactionID] = struct{}{}
	}
	res.Inserted = len(located)
	l.logr.Info("price paid chunk inserted", res.fields()...)
	return res
}

// transformPricePaid rejects rows with no transaction id or an unparseable
// price or transfer date.
func transformPricePaid(rec []string) (models.PricePaid, bool) {
	field := func(i int) string { return strings.TrimSpace(rec[i]) }

	id := field(ppTransactionID)
	if id == "" {
		return models.PricePaid{}, false
	}
	price, err := strconv.ParseInt(field(ppPrice), 10, 64)
	if err != nil {
		return models.PricePaid{}, false
	}
	date, ok := parseDate(field(ppDateOfTransfer), pricePaidDateLayouts)
	if !ok {
		return models.PricePaid{}, false
	}

	return models.PricePaid{
		TransactionID:  id,
		Price:          price,
		DateOfTransfer: date,
		Postcode:       field(ppPostcode),
		PropertyType:   field(ppPropertyType),
		NewBuildFlag:   field(ppNewBuildFlag),
		TenureType:     field(ppTenureType),
		PAON:           field(ppPAON),
		SAON:           field(ppSAON),
		Street:         field(ppStreet),
		Locality:       field(ppLocality),
		TownCity:       field(ppTownCity),
		District:       field(ppDistrict),
		County:         field(ppCounty),
	}, true
}
