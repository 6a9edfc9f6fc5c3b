// Package odata talks to the ERP's OData sales-line entity.
package odata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/reconciler"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

var (
	ErrSalesIDRequired       = errors.New("salesId is required")
	ErrNoChanges             = errors.New("changes must not be empty")
	ErrUnexpectedContentType = errors.New("unexpected OData content type")
)

// maxPages bounds how many @odata.nextLink hops one fetch follows.
const maxPages = 50

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("OData API returned status %d: %s", e.StatusCode, e.Body)
}

// Response is one OData collection payload. Numbers in Value are decoded as
// json.Number so amounts keep their exact text.
type Response struct {
	Context  string             `json:"@odata.context,omitempty"`
	NextLink string             `json:"@odata.nextLink,omitempty"`
	Value    []normalize.Record `json:"value"`
}

// Options tune a Client.
type Options struct {
	// DataAreaID is added to PATCH keys when set.
	DataAreaID string
	// HTTPClient replaces the OAuth2 client; it must authorize requests itself.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client reads and patches ERP sales lines.
type Client struct {
	endpoint    string
	filterField string
	dataAreaID  string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

var _ reconciler.SourceFetcher = (*Client)(nil)

// NewClient creates a client authenticating with the client-credentials
// grant. Tokens are cached and refreshed by the oauth2 transport.
func NewClient(cfg config.ODataConfig, opts Options) (*Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		if cfg.Scope != "" {
			cc.Scopes = []string{cfg.Scope}
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = timeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		endpoint:    EntityEndpoint(cfg.BaseURL, cfg.EntityName),
		filterField: cfg.FilterField,
		dataAreaID:  opts.DataAreaID,
		httpClient:  httpClient,
		logger:      logger,
	}
	if c.filterField == "" {
		c.filterField = "SalesId"
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// EntityEndpoint joins the service root and entity set, adding /data when
// the base URL does not already end with it.
func EntityEndpoint(baseURL, entity string) string {
	if entity == "" {
		entity = "PdSalesVSCostProcesseds"
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return entity
	}
	if !strings.HasSuffix(strings.ToLower(base), "/data") {
		base += "/data"
	}
	return base + "/" + entity
}

// Escape doubles single quotes for use inside an OData string literal.
func Escape(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// FetchBySalesID returns every entity row whose filter field equals salesID,
// following server-driven paging.
func (c *Client) FetchBySalesID(ctx context.Context, salesID string) (*Response, error) {
	salesID = strings.TrimSpace(salesID)
	if salesID == "" {
		return nil, ErrSalesIDRequired
	}

	start := time.Now()
	filter := fmt.Sprintf("%s eq '%s'", c.filterField, Escape(salesID))
	next := c.endpoint + "?$filter=" + strings.ReplaceAll(url.QueryEscape(filter), "+", "%20")

	out := &Response{Value: make([]normalize.Record, 0)}
	for page := 0; next != "" && page < maxPages; page++ {
		resp, err := c.getPage(ctx, next)
		if err != nil {
			return nil, err
		}
		if page == 0 {
			out.Context = resp.Context
		}
		out.Value = append(out.Value, resp.Value...)
		next = resp.NextLink
	}
	if next != "" {
		c.logger.Warn("OData paging stopped early", "sales_id", salesID, "pages", maxPages)
		out.NextLink = next
	}

	c.logger.Debug("fetched OData lines",
		"sales_id", salesID,
		"count", len(out.Value),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// FetchSourceLines returns the raw source lines of one order.
func (c *Client) FetchSourceLines(ctx context.Context, salesID string) ([]normalize.Record, error) {
	resp, err := c.FetchBySalesID(ctx, salesID)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (c *Client) getPage(ctx context.Context, pageURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "odata.maxpagesize=5000")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedContentType, ct)
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var page Response
	if err := decoder.Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to parse OData response: %w", err)
	}
	return &page, nil
}

// Patch updates one entity keyed by sales id (and data area, when
// configured). The change set is sent as-is with If-Match: *.
func (c *Client) Patch(ctx context.Context, salesID string, changes map[string]any) error {
	salesID = strings.TrimSpace(salesID)
	if salesID == "" {
		return ErrSalesIDRequired
	}
	if len(changes) == 0 {
		return ErrNoChanges
	}

	body, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	keys := []string{fmt.Sprintf("%s='%s'", c.filterField, url.PathEscape(Escape(salesID)))}
	if c.dataAreaID != "" {
		keys = append(keys, fmt.Sprintf("dataAreaId='%s'", url.PathEscape(Escape(c.dataAreaID))))
	}
	target := c.endpoint + "(" + strings.Join(keys, ",") + ")"

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-Match", "*")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	c.logger.Info("patched OData record", "sales_id", salesID, "fields", len(changes))
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OData request failed: %w", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
