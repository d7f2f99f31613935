package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"propdata/internal/models"
	"propdata/internal/utils"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// postcodes.io accepts at most 100 postcodes per bulk request.
	bulkLimit      = 100
	bulkWorkers    = 4
	cacheTTL       = 24 * time.Hour
	defaultTimeout = 10 * time.Second

	// outbound requests per second to postcodes.io, shared by all callers
	requestsPerSecond = 10
)

// PostcodesIO resolves postcodes through the postcodes.io REST API. Resolved
// points are kept in an expiring LRU cache and outbound calls are throttled.
type PostcodesIO struct {
	baseURL    string
	httpClient *http.Client
	cache      *lru.LRU[string, models.Point]
	throttle   *rate.Limiter
}

func NewPostcodesIO(baseURL string, client *http.Client, cacheSize int) *PostcodesIO {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &PostcodesIO{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		cache:      lru.NewLRU[string, models.Point](cacheSize, nil, cacheTTL),
		throttle:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

type pcResult struct {
	Postcode  string   `json:"postcode"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (r *pcResult) point() (models.Point, bool) {
	if r == nil || r.Latitude == nil || r.Longitude == nil {
		return models.Point{}, false
	}
	return models.Point{Lon: *r.Longitude, Lat: *r.Latitude}, true
}

type singleResponse struct {
	Status int       `json:"status"`
	Result *pcResult `json:"result"`
}

type bulkResponse struct {
	Status int `json:"status"`
	Result []struct {
		Query  string    `json:"query"`
		Result *pcResult `json:"result"`
	} `json:"result"`
}

func (c *PostcodesIO) Lookup(ctx context.Context, postcode string) (models.Point, error) {
	key := utils.NormalizePostcode(postcode)
	if key == "" {
		return models.Point{}, ErrPostcodeNotFound
	}
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}

	u := fmt.Sprintf("%s/postcodes/%s", c.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Point{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if err := c.throttle.Wait(ctx); err != nil {
		return models.Point{}, fmt.Errorf("postcode lookup: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Point{}, fmt.Errorf("postcode lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.Point{}, ErrPostcodeNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return models.Point{}, fmt.Errorf("postcodes.io returned HTTP %d", resp.StatusCode)
	}

	var body singleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Point{}, fmt.Errorf("decoding response: %w", err)
	}
	p, ok := body.Result.point()
	if !ok {
		return models.Point{}, ErrPostcodeNotFound
	}
	c.cache.Add(key, p)
	return p, nil
}

func (c *PostcodesIO) LookupMany(ctx context.Context, postcodes []string) (map[string]models.Point, error) {
	out := make(map[string]models.Point, len(postcodes))
	seen := make(map[string]struct{}, len(postcodes))
	var pending []string

	for _, pc := range postcodes {
		key := utils.NormalizePostcode(pc)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if p, ok := c.cache.Get(key); ok {
			out[key] = p
			continue
		}
		pending = append(pending, key)
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(bulkWorkers)

	for start := 0; start < len(pending); start += bulkLimit {
		end := min(start+bulkLimit, len(pending))
		batch := pending[start:end]
		eg.Go(func() error {
			found, err := c.bulk(ctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			for k, p := range found {
				out[k] = p
			}
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PostcodesIO) bulk(ctx context.Context, batch []string) (map[string]models.Point, error) {
	payload, err := json.Marshal(map[string][]string{"postcodes": batch})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/postcodes", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if err := c.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("bulk postcode lookup: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulk postcode lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("postcodes.io bulk returned HTTP %d", resp.StatusCode)
	}

	var body bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding bulk response: %w", err)
	}

	found := make(map[string]models.Point, len(body.Result))
	for _, item := range body.Result {
		p, ok := item.Result.point()
		if !ok {
			continue
		}
		key := utils.NormalizePostcode(item.Query)
		found[key] = p
		c.cache.Add(key, p)
	}
	return found, nil
}
