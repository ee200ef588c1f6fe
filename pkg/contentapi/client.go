package contentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

const (
	defaultUserAgent = "protein-empire-cms/0.1"
	maxErrorBody     = 8 << 10
)

// HTTPDoer is the subset of *http.Client used by the client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the content store root, e.g. http://localhost:1337.
	// Requests go to BaseURL + "/api" + endpoint.
	BaseURL string

	// Token is sent as a bearer token on every request.
	Token string

	UserAgent  string
	HTTPClient HTTPDoer
	Metrics    *telemetry.Metrics
	Logger     *telemetry.Logger
}

// Client issues authenticated JSON requests to the content store.
// It never retries.
type Client struct {
	base      *url.URL
	token     string
	userAgent string
	http      HTTPDoer
	metrics   *telemetry.Metrics
	logger    *telemetry.Logger
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &ConfigError{Field: "base URL", Reason: "is required"}
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, &ConfigError{Field: "API token", Reason: "is required"}
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &ConfigError{Field: "base URL", Reason: fmt.Sprintf("%q is not an absolute URL", cfg.BaseURL)}
	}

	c := &Client{
		base:      base,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		http:      cfg.HTTPClient,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.http == nil {
		// no client-side deadline; callers bound requests through ctx
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = telemetry.NopLogger()
	}
	c.logger = c.logger.NewComponentLogger("contentapi")
	return c, nil
}

// Request sends body (if non-nil) as JSON to endpoint and returns the raw
// response body. endpoint is relative to the API root and may carry a query
// string, e.g. "/sites?pagination[limit]=1". Any non-2xx response or
// transport failure is returned as *APIError.
func (c *Client) Request(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+"/api"+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resource := resourceOf(endpoint)
	timer := telemetry.NewTimer()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(resource, method, 0, timer.Duration())
		return nil, &APIError{Method: method, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordAPIRequest(resource, method, resp.StatusCode, timer.Duration())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Status:   resp.StatusCode,
			Method:   method,
			Endpoint: endpoint,
			Body:     strings.TrimSpace(string(snippet)),
		}
		c.logger.WithFields(map[string]interface{}{
			"method":   method,
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Debug("Content API request failed")
		return nil, apiErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Status: resp.StatusCode, Method: method, Endpoint: endpoint, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

type singleEnvelope struct {
	Data *engine.Identity `json:"data"`
}

type listEnvelope struct {
	Data []engine.Identity `json:"data"`
}

// Create posts {data: fields} to the collection and returns the new identity.
func (c *Client) Create(ctx context.Context, resource string, fields map[string]any) (engine.Identity, error) {
	raw, err := c.Request(ctx, "/"+resource, http.MethodPost, map[string]any{"data": fields})
	if err != nil {
		return engine.Identity{}, err
	}
	var env singleEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return engine.Identity{}, fmt.Errorf("failed to decode %s create response: %w", resource, err)
	}
	if env.Data == nil || env.Data.IsZero() {
		return engine.Identity{}, fmt.Errorf("%s create response has no id", resource)
	}
	return *env.Data, nil
}

// Find lists entities of the collection matching every equality filter.
func (c *Client) Find(ctx context.Context, resource string, filters ...engine.Filter) ([]engine.Identity, error) {
	endpoint := "/" + resource
	if q := EncodeFilters(filters); q != "" {
		endpoint += "?" + q
	}
	raw, err := c.Request(ctx, endpoint, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s list response: %w", resource, err)
	}
	return env.Data, nil
}

// Probe checks connectivity and credentials with a minimal list request.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Request(ctx, "/sites?pagination[limit]=1", http.MethodGet, nil)
	return err
}

// EncodeFilters renders equality filters in the store's bracket syntax:
// a filter on "site.id" becomes filters[site][id][$eq]=<value>.
func EncodeFilters(filters []engine.Filter) string {
	q := url.Values{}
	for _, f := range filters {
		var key strings.Builder
		key.WriteString("filters")
		for _, part := range strings.Split(f.Field, ".") {
			key.WriteString("[" + part + "]")
		}
		key.WriteString("[$eq]")
		q.Add(key.String(), f.Value)
	}
	return q.Encode()
}

// resourceOf returns the collection segment of an endpoint for metric labels.
func resourceOf(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	if i := strings.IndexAny(endpoint, "/?"); i >= 0 {
		endpoint = endpoint[:i]
	}
	return endpoint
}

var _ engine.ContentAPI = (*Client)(nil)
