package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"propdata/internal/config"
	"propdata/internal/geocode"
	"propdata/internal/logger"
	"propdata/internal/models"
	"propdata/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	pricePaid map[string]models.PricePaid
	epc       map[string]models.EPC

	schemaErr  error
	failInsert func(n int) bool
	inserts    int
}

func newMemStore() *memStore {
	return &memStore{pricePaid: map[string]models.PricePaid{}, epc: map[string]models.EPC{}}
}

func (s *memStore) EnsureSchema(context.Context) error { return s.schemaErr }

func (s *memStore) CountPricePaid(context.Context) (int, error) { return len(s.pricePaid), nil }

func (s *memStore) CountEPC(context.Context) (int, error) { return len(s.epc), nil }

func (s *memStore) PricePaidIDs(context.Context) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for k := range s.pricePaid {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *memStore) EPCKeys(context.Context) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for k := range s.epc {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *memStore) insertFails() bool {
	s.inserts++
	return s.failInsert != nil && s.failInsert(s.inserts)
}

func (s *memStore) InsertPricePaid(_ context.Context, rows []models.PricePaid) error {
	if s.insertFails() {
		return errors.New("insert failed")
	}
	for _, r := range rows {
		if _, dup := s.pricePaid[r.TransactionID]; dup {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	for _, r := range rows {
		s.pricePaid[r.TransactionID] = r
	}
	return nil
}

func (s *memStore) InsertEPC(_ context.Context, rows []models.EPC) error {
	if s.insertFails() {
		return errors.New("insert failed")
	}
	for _, r := range rows {
		if _, dup := s.epc[r.LMKKey]; dup {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	for _, r := range rows {
		s.epc[r.LMKKey] = r
	}
	return nil
}

type mapGeocoder map[string]models.Point

func (g mapGeocoder) Lookup(_ context.Context, pc string) (models.Point, error) {
	p, ok := g[utils.NormalizePostcode(pc)]
	if !ok {
		return models.Point{}, geocode.ErrPostcodeNotFound
	}
	return p, nil
}

func (g mapGeocoder) LookupMany(_ context.Context, pcs []string) (map[string]models.Point, error) {
	out := map[string]models.Point{}
	for _, pc := range pcs {
		if p, ok := g[utils.NormalizePostcode(pc)]; ok {
			out[utils.NormalizePostcode(pc)] = p
		}
	}
	return out, nil
}

var testGeo = mapGeocoder{
	"BH11AA": {Lon: -1.8795, Lat: 50.7222},
	"BH23AB": {Lon: -1.8890, Lat: 50.7190},
}

const pricePaidCSV = `"T1","250000","2020-01-01 00:00","BH1 1AA","F","N","L","FLAT 2","","OLD CHRISTCHURCH ROAD","","BOURNEMOUTH","BOURNEMOUTH, CHRISTCHURCH AND POOLE","BOURNEMOUTH, CHRISTCHURCH AND POOLE","A","A"
"T2","180000","2019-05-17 00:00","SO14 7DU","T","N","F","3","","HIGH STREET","","SOUTHAMPTON","SOUTHAMPTON","SOUTHAMPTON","A","A"
"T3","320000","2021-07-09 00:00","BH2 3AB","D","Y","F","10","","WEST CLIFF ROAD","","BOURNEMOUTH","BOURNEMOUTH, CHRISTCHURCH AND POOLE","BOURNEMOUTH, CHRISTCHURCH AND POOLE","A","A"
"T4","99000","2018-02-02 00:00","BH99 9ZZ","F","N","L","5","","NOWHERE LANE","","BOURNEMOUTH","BOURNEMOUTH, CHRISTCHURCH AND POOLE","BOURNEMOUTH, CHRISTCHURCH AND POOLE","A","A"
"T5","not-a-price","2018-02-02 00:00","BH1 1AA","F","N","L","6","","OLD CHRISTCHURCH ROAD","","BOURNEMOUTH","BOURNEMOUTH, CHRISTCHURCH AND POOLE","BOURNEMOUTH, CHRISTCHURCH AND POOLE","A","A"
"T6","120000","2018-02-02 00:00","","F","N","L","7","","OLD CHRISTCHURCH ROAD","","BOURNEMOUTH","","","A","A"
`

const epcCSV = `LMK_KEY,ADDRESS1,ADDRESS,POSTCODE,UPRN,LODGEMENT_DATE,CURRENT_ENERGY_RATING,POTENTIAL_ENERGY_RATING,TOTAL_FLOOR_AREA,PROPERTY_TYPE,BUILT_FORM,EXTRA
k1,1 Test Road,"1 Test Road, Bournemouth",bh1 1aa,100040000001.0,2023-01-02,C,B,72.5,House,Detached,x
k2,2 Test Road,"2 Test Road, Bournemouth",BH1 1AA,,2019-06-01,D,C,unknown,Flat,,x
k3,3 Test Road,"3 Test Road, Bournemouth",BH1 1AA,100040000003,not-a-date,E,C,50,Flat,,x
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		EPCCSVPath:       filepath.Join(dir, "certificates.csv"),
		PricePaidCSVPath: filepath.Join(dir, "pp-complete.csv"),
		PricePaidURL:     "http://127.0.0.1:1/pp-complete.csv",
		ChunkSize:        2,
		RegionPrefix:     "BH",
	}
}

func TestRun_LoadsBothDatasets(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "pp-complete.csv", pricePaidCSV)
	writeFile(t, dir, "certificates.csv", epcCSV)

	store := newMemStore()
	rep, err := New(cfg, store, testGeo, nil, logger.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)

	// T2 out of region, T4 ungeocoded, T5 bad price, T6 no postcode
	require.Len(t, store.pricePaid, 2)
	t1 := store.pricePaid["T1"]
	assert.Equal(t, int64(250000), t1.Price)
	assert.Equal(t, "2020-01-01", t1.DateOfTransfer.Format(models.DateLayout))
	assert.Equal(t, "BH1 1AA", t1.Postcode)
	require.NotNil(t, t1.Location)
	assert.Equal(t, -1.8795, t1.Location.Lon)
	assert.Equal(t, "Y", store.pricePaid["T3"].NewBuildFlag)

	assert.Equal(t, 2, rep.PricePaid.Inserted())
	assert.Len(t, rep.PricePaid.Chunks, 3)

	var ungeocoded, rejected, outOfRegion int
	for _, c := range rep.PricePaid.Chunks {
		ungeocoded += c.Ungeocoded
		rejected += c.Rejected
		outOfRegion += c.OutOfRegion
	}
	assert.Equal(t, 1, ungeocoded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 2, outOfRegion)

	// k3 has an unparseable date
	require.Len(t, store.epc, 2)
	k1 := store.epc["k1"]
	assert.Equal(t, "1 Test Road, Bournemouth", k1.Address)
	assert.Equal(t, "BH11AA", k1.Postcode)
	require.NotNil(t, k1.UPRN)
	assert.Equal(t, "100040000001", *k1.UPRN)
	require.NotNil(t, k1.TotalFloorArea)
	assert.Equal(t, 72.5, *k1.TotalFloorArea)

	k2 := store.epc["k2"]
	assert.Nil(t, k2.UPRN)
	assert.Nil(t, k2.TotalFloorArea)
	assert.Equal(t, "", k2.BuiltForm)
}

func TestRun_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "pp-complete.csv", pricePaidCSV)
	writeFile(t, dir, "certificates.csv", epcCSV)

	store := newMemStore()
	_, err := New(cfg, store, testGeo, nil, logger.Nop()).Run(context.Background())
	require.NoError(t, err)

	rep, err := New(cfg, store, testGeo, nil, logger.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.PricePaid.Skipped)
	assert.Equal(t, 0, rep.EPC.Inserted())
	assert.Equal(t, 0, rep.EPC.FailedChunks())
	assert.Len(t, store.pricePaid, 2)
	assert.Len(t, store.epc, 2)
}

func TestRun_FailedChunkIsSkipped(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.ChunkSize = 1
	writeFile(t, dir, "certificates.csv", epcCSV)

	store := newMemStore()
	store.pricePaid["existing"] = models.PricePaid{TransactionID: "existing"}
	store.failInsert = func(n int) bool { return n == 1 }

	rep, err := New(cfg, store, testGeo, nil, logger.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.EPC.FailedChunks())
	assert.NotContains(t, store.epc, "k1")
	assert.Contains(t, store.epc, "k2")
}

func TestRun_SkipsMissingEPCFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	store := newMemStore()
	store.pricePaid["existing"] = models.PricePaid{TransactionID: "existing"}

	rep, err := New(cfg, store, testGeo, nil, logger.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.EPC.Skipped)
	assert.True(t, rep.PricePaid.Skipped)
}

func TestRun_SchemaFailureAborts(t *testing.T) {
	store := newMemStore()
	store.schemaErr = errors.New("permission denied to create extension")

	_, err := New(testConfig(t.TempDir()), store, testGeo, nil, logger.Nop()).Run(context.Background())
	assert.ErrorContains(t, err, "ensure schema")
}

func TestRun_DownloadsPricePaidWhenMissing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(pricePaidCSV))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.PricePaidURL = srv.URL + "/pp-complete.csv"

	store := newMemStore()
	_, err := New(cfg, store, testGeo, srv.Client(), logger.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Len(t, store.pricePaid, 2)
	assert.FileExists(t, cfg.PricePaidCSVPath)
	assert.NoFileExists(t, cfg.PricePaidCSVPath+".part")
}

func TestRun_DownloadFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.PricePaidURL = srv.URL
	writeFile(t, dir, "certificates.csv", epcCSV)

	store := newMemStore()
	_, err := New(cfg, store, testGeo, srv.Client(), logger.Nop()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	assert.NoFileExists(t, cfg.PricePaidCSVPath)
	assert.NoFileExists(t, cfg.PricePaidCSVPath+".part")
	assert.Empty(t, store.epc)
}

func TestNewEPCIndex_MissingColumns(t *testing.T) {
	_, err := newEPCIndex([]string{"LMK_KEY", "ADDRESS", "POSTCODE"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uprn")
	assert.Contains(t, err.Error(), "built_form")
}

func TestNewEPCIndex_NormalizesNames(t *testing.T) {
	header := strings.Split("\ufeffLMK-KEY,Address,postcode,UPRN,LODGEMENT-DATE,CURRENT_ENERGY_RATING,POTENTIAL_ENERGY_RATING,TOTAL_FLOOR_AREA,PROPERTY_TYPE,BUILT_FORM", ",")
	idx, err := newEPCIndex(header)
	require.NoError(t, err)
	assert.Equal(t, 0, idx["lmk_key"])
	assert.Equal(t, 4, idx["lodgement_date"])
}

func TestCleanUPRN(t *testing.T) {
	assert.Nil(t, cleanUPRN(""))
	assert.Nil(t, cleanUPRN("nan"))
	assert.Equal(t, "10023", *cleanUPRN("10023.0"))
	assert.Equal(t, "10023", *cleanUPRN("10023"))
}

func TestChunkReader_SkipsMalformedLines(t *testing.T) {
	cr := newChunkReader(strings.NewReader("a,b\n\"broken\"x,\"y\nc,d\n"), 10)
	cr.r.LazyQuotes = false

	rows, err := cr.next()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, rows[:1])
	assert.GreaterOrEqual(t, cr.malformed, 1)
}
