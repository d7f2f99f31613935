package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"propdata/internal/models"
	"propdata/internal/utils"

	"go.uber.org/zap"
)

var epcColumns = []string{
	"lmk_key", "address", "postcode", "uprn", "lodgement_date",
	"current_energy_rating", "potential_energy_rating", "total_floor_area",
	"property_type", "built_form",
}

var epcDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// epcIndex maps each needed column to its position in the file.
type epcIndex map[string]int

func newEPCIndex(header []string) (epcIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), "-", "_")
		pos[strings.TrimPrefix(name, "\ufeff")] = i
	}

	idx := make(epcIndex, len(epcColumns))
	var missing []string
	for _, c := range epcColumns {
		i, ok := pos[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		idx[c] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("epc csv missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func (idx epcIndex) get(rec []string, col string) string {
	i := idx[col]
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (l *Loader) loadEPC(ctx context.Context) (DatasetReport, error) {
	var rep DatasetReport
	path := l.cfg.EPCCSVPath

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		l.logr.Info("epc file not found, skipping epc load", zap.String("path", path))
		rep.Skipped = true
		rep.SkipReason = "file not found"
		return rep, nil
	}
	if err != nil {
		return rep, fmt.Errorf("open epc csv: %w", err)
	}
	defer f.Close()

	seen, err := l.store.EPCKeys(ctx)
	if err != nil {
		return rep, fmt.Errorf("load existing epc keys: %w", err)
	}
	l.logr.Info("starting epc load", zap.String("path", path), zap.Int("existing", len(seen)))

	cr := newChunkReader(f, l.cfg.ChunkSize)
	header, err := cr.header()
	if err != nil {
		return rep, fmt.Errorf("read epc header: %w", err)
	}
	idx, err := newEPCIndex(header)
	if err != nil {
		return rep, err
	}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rows, err := cr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("read epc csv: %w", err)
		}

		res := l.processEPCChunk(ctx, n, rows, idx, seen)
		rep.Chunks = append(rep.Chunks, res)
	}
	rep.Malformed = cr.malformed

	l.logr.Info("epc load finished",
		zap.Int("chunks", len(rep.Chunks)),
		zap.Int("inserted", rep.Inserted()),
		zap.Int("failed_chunks", rep.FailedChunks()),
		zap.Int("malformed_lines", rep.Malformed),
	)
	return rep, nil
}

func (l *Loader) processEPCChunk(ctx context.Context, n int, rows [][]string, idx epcIndex, seen map[string]struct{}) ChunkResult {
	res := ChunkResult{Dataset: DatasetEPC, Index: n, Read: len(rows)}

	batch := make([]models.EPC, 0, len(rows))
	inChunk := make(map[string]struct{})
	for _, rec := range rows {
		key := idx.get(rec, "lmk_key")
		if _, ok := seen[key]; ok {
			res.SkippedExisting++
			continue
		}
		if _, ok := inChunk[key]; ok {
			res.SkippedExisting++
			continue
		}
		row, ok := transformEPC(rec, idx)
		if !ok {
			res.Rejected++
			continue
		}
		inChunk[key] = struct{}{}
		batch = append(batch, row)
	}

	if len(batch) == 0 {
		return res
	}

	if err := l.store.InsertEPC(ctx, batch); err != nil {
		res.Err = err
		l.logr.Error("epc chunk insert failed, skipping chunk", append(res.fields(), zap.Error(err))...)
		return res
	}
	for _, r := range batch {
		seen[r.LMKKey] = struct{}{}
	}
	res.Inserted = len(batch)
	l.logr.Info("epc chunk inserted", res.fields()...)
	return res
}

// transformEPC rejects rows without a key or a parseable lodgement date.
func transformEPC(rec []string, idx epcIndex) (models.EPC, bool) {
	key := idx.get(rec, "lmk_key")
	if key == "" {
		return models.EPC{}, false
	}
	lodged, ok := parseDate(idx.get(rec, "lodgement_date"), epcDateLayouts)
	if !ok {
		return models.EPC{}, false
	}

	return models.EPC{
		LMKKey:                key,
		Address:               idx.get(rec, "address"),
		Postcode:              utils.NormalizePostcode(idx.get(rec, "postcode")),
		UPRN:                  cleanUPRN(idx.get(rec, "uprn")),
		LodgementDate:         lodged,
		CurrentEnergyRating:   idx.get(rec, "current_energy_rating"),
		PotentialEnergyRating: idx.get(rec, "potential_energy_rating"),
		TotalFloorArea:        parseOptionalFloat(idx.get(rec, "total_floor_area")),
		PropertyType:          idx.get(rec, "property_type"),
		BuiltForm:             idx.get(rec, "built_form"),
	}, true
}

// cleanUPRN drops the ".0" that float-typed exports append.
func cleanUPRN(raw string) *string {
	v := strings.TrimSuffix(raw, ".0")
	if v == "" || strings.EqualFold(v, "nan") {
		return nil
	}
	return &v
}

func parseOptionalFloat(raw string) *float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func parseDate(raw string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
