// Package inventoryapi fetches raw inventory records from the inventory
// service over HTTP.
package inventoryapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/erp/inventoryreport/internal/domain/inventory"
	infraconfig "github.com/erp/inventoryreport/internal/infrastructure/config"
	csvimport "github.com/erp/inventoryreport/internal/infrastructure/import"
	"go.uber.org/zap"
)

const (
	itemsPath       = "/inventory/items"
	maxResponseSize = 10 << 20
)

var (
	// ErrUnavailable is returned when the inventory service cannot be reached
	ErrUnavailable = errors.New("inventory api unavailable")
	// ErrRequestFailed is returned for non-2xx responses
	ErrRequestFailed = errors.New("inventory api request failed")
)

// Client reads inventory items from GET <base>/inventory/items
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the inventory service at baseURL
func NewClient(baseURL string, cfg *infraconfig.InventoryAPIConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("inventoryapi: invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	if cfg != nil {
		c.token = cfg.APIToken
		c.httpClient.Timeout = cfg.Timeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchItems returns the raw records as served. The body may be a JSON array
// or an object with an "items" array.
func (c *Client) FetchItems(ctx context.Context) ([]inventory.RawItem, error) {
	endpoint := c.baseURL + itemsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("inventoryapi: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("inventoryapi: failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("inventory api returned an error status",
			zap.String("url", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("inventoryapi: %w", csvimport.ErrFileTooLarge)
	}

	items, err := csvimport.DecodeInventoryJSON(body)
	if err != nil {
		return nil, fmt.Errorf("inventoryapi: %w", err)
	}
	c.logger.Debug("fetched inventory items", zap.Int("count", len(items)))
	return items, nil
}
