// Package geoboundaries implements domain.BoundaryFetcher against the
// geoBoundaries API (https://www.geoboundaries.org).
package geoboundaries

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
	"github.com/couchcryptid/climate-region-etl/internal/observability"
)

// maxGeometryBytes bounds a single GeoJSON download.
const maxGeometryBytes = 256 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

// Client lists administrative levels and downloads boundary GeoJSON.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	backoff    BackoffConfig
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a geoBoundaries client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		breaker:    newBreaker("geoboundaries"),
		backoff: BackoffConfig{
			MaxRetries:      opts.Retries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     8 * time.Second,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// FetchLevels returns every administrative level published for country.
func (c *Client) FetchLevels(ctx context.Context, country string) ([]domain.BoundaryLevel, error) {
	u := fmt.Sprintf("%s/%s/ALL/", c.baseURL, country)

	body, err := c.get(ctx, u, "levels", 1<<20)
	if err != nil {
		return nil, err
	}

	var records []levelRecord
	trimmed := bytes.TrimSpace(body)
	switch {
	case bytes.HasPrefix(trimmed, []byte("[")):
		err = json.Unmarshal(trimmed, &records)
	case bytes.HasPrefix(trimmed, []byte("{")):
		var one levelRecord
		err = json.Unmarshal(trimmed, &one)
		records = []levelRecord{one}
	default:
		err = fmt.Errorf("unexpected payload starting with %.16q", trimmed)
	}
	if err != nil {
		return nil, fmt.Errorf("decode levels for %s: %w", country, err)
	}

	levels := make([]domain.BoundaryLevel, 0, len(records))
	for _, r := range records {
		levels = append(levels, r.toDomain())
	}
	c.logger.Debug("boundary levels listed", "country", country, "levels", len(levels))
	return levels, nil
}

// FetchGeometry downloads a GeoJSON document.
func (c *Client) FetchGeometry(ctx context.Context, url string) ([]byte, error) {
	return c.get(ctx, url, "geometry", maxGeometryBytes)
}

func (c *Client) get(ctx context.Context, url, method string, limit int64) ([]byte, error) {
	start := time.Now()
	resp, err := doRequest(ctx, c.httpClient, c.breaker, c.backoff, url)
	c.metrics.BoundaryAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.BoundaryRequests.WithLabelValues(method, "error").Inc()
		c.logger.Warn("boundary request failed", "method", method, "url", url, "error", err)
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		c.metrics.BoundaryRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	if int64(len(body)) > limit {
		c.metrics.BoundaryRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s response exceeds %d bytes", method, limit)
	}
	c.metrics.BoundaryRequests.WithLabelValues(method, "success").Inc()
	return body, nil
}

// levelRecord is the subset of a geoBoundaries metadata record we use.
type levelRecord struct {
	BoundaryID                string `json:"boundaryID"`
	BoundaryName              string `json:"boundaryName"`
	BoundaryISO               string `json:"boundaryISO"`
	BoundaryType              string `json:"boundaryType"`
	SimplifiedGeometryGeoJSON string `json:"simplifiedGeometryGeoJSON"`
	GJDownloadURL             string `json:"gjDownloadURL"`
}

func (r levelRecord) toDomain() domain.BoundaryLevel {
	url := r.SimplifiedGeometryGeoJSON
	if url == "" {
		url = r.GJDownloadURL
	}
	return domain.BoundaryLevel{
		ID:          r.BoundaryID,
		Name:        r.BoundaryName,
		ISO:         r.BoundaryISO,
		Type:        r.BoundaryType,
		GeometryURL: url,
	}
}
