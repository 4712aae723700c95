// Package catalog checks whether granules are already published in NASA's
// Common Metadata Repository (CMR).
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/config"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/granule"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/reingest"
)

const (
	// DefaultCMRURL is the production CMR root.
	DefaultCMRURL = "https://cmr.earthdata.nasa.gov"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
	hitsHeader     = "CMR-Hits"
)

// ErrCatalogUnavailable is returned when CMR cannot answer a lookup.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

var _ reingest.Catalog = (*CMRClient)(nil)

type (
	// CMRConfig holds configuration for CMRClient.
	CMRConfig struct {
		URL     string
		Timeout time.Duration
		// Provider restricts lookups to one CMR provider ("LPCLOUD"); empty searches all.
		Provider string
	}

	// CMRClient looks granules up through the CMR granule search API.
	CMRClient struct {
		baseURL    string
		provider   string
		httpClient *http.Client
		logger     *slog.Logger
	}

	searchResponse struct {
		Feed struct {
			Entry []json.RawMessage `json:"entry"`
		} `json:"feed"`
	}
)

// LoadCMRConfig reads CMR_URL, CMR_TIMEOUT and CMR_PROVIDER.
func LoadCMRConfig() CMRConfig {
	return CMRConfig{
		URL:      config.GetEnvStr("CMR_URL", DefaultCMRURL),
		Timeout:  config.GetEnvDuration("CMR_TIMEOUT", defaultTimeout),
		Provider: config.GetEnvStr("CMR_PROVIDER", ""),
	}
}

// NewCMRClient creates a CMR client.
func NewCMRClient(cfg CMRConfig, logger *slog.Logger) *CMRClient {
	if cfg.URL == "" {
		cfg.URL = DefaultCMRURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &CMRClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		provider:   cfg.Provider,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// GranuleExists reports whether CMR holds granuleID in collection.
func (c *CMRClient) GranuleExists(ctx context.Context, collection granule.CollectionID, granuleID string) (bool, error) {
	query := url.Values{}
	query.Set("short_name", collection.ShortName)
	query.Set("version", collection.Version)
	query.Set("readable_granule_name", granuleID)
	query.Set("page_size", "1")

	if c.provider != "" {
		query.Set("provider", c.provider)
	}

	endpoint := c.baseURL + "/search/granules.json?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return false, fmt.Errorf("%w: status %d: %s", ErrCatalogUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if hits := resp.Header.Get(hitsHeader); hits != "" {
		n, err := strconv.Atoi(hits)
		if err == nil {
			c.logger.Debug("Catalog lookup",
				slog.String("collection_id", collection.String()),
				slog.String("granule_id", granuleID),
				slog.Int("hits", n))

			return n > 0, nil
		}
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: failed to decode search response: %w", ErrCatalogUnavailable, err)
	}

	return len(body.Feed.Entry) > 0, nil
}
