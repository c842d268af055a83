// Package remote implements adapter.Storefront over the storefront service's
// JSON HTTP API.
package remote

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

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/transport"
)

const (
	serviceName = "storefront service"
	userAgent   = "storefront-client/1.0"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20

	defaultTimeout         = 30 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerOpen     = 30 * time.Second
)

// BreakerConfig controls the circuit breaker in front of the service.
// The breaker never retries: once open it fails calls fast as unreachable.
type BreakerConfig struct {
	ConsecutiveFailures uint32        // Transport faults before opening
	OpenTimeout         time.Duration // Time spent open before a probe
}

// Config holds storefront client configuration.
type Config struct {
	BaseURL     string // e.g. "http://localhost:8082/api/v1"
	Timeout     time.Duration
	Fingerprint transport.Fingerprint
	Breaker     BreakerConfig
	Logger      *slog.Logger

	// HTTPClient overrides the client built from Timeout and Fingerprint.
	HTTPClient *http.Client
}

// Client talks to the storefront service.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	breaker    *gobreaker.CircuitBreaker[response]
	logger     *slog.Logger
}

var _ adapter.Storefront = (*Client)(nil)

// New creates a storefront client with the given configuration.
func New(cfg Config) (*Client, error) {
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		rt, err := transport.New(transport.Options{
			Timeout:     timeout,
			Fingerprint: cfg.Fingerprint,
			UserAgent:   userAgent,
		})
		if err != nil {
			return nil, fmt.Errorf("building transport: %w", err)
		}
		httpClient = &http.Client{Timeout: timeout, Transport: rt}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		breaker:    newBreaker(cfg.Breaker, logger),
		logger:     logger,
	}, nil
}

// newBreaker builds the circuit breaker. Only unreachable or 5xx outcomes
// count as failures; 4xx responses are the service doing its job.
func newBreaker(cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[response] {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultBreakerOpen
	}

	return gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:        "storefront",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if errors.Is(err, model.ErrUnreachable) {
				return false
			}
			var apiErr *model.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
				return false
			}
			return true
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

// ListProducts returns the full catalog.
func (c *Client) ListProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := c.do(ctx, http.MethodGet, "/products", nil, "", nil, &products); err != nil {
		return nil, err
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

// SearchProducts returns products matching text. A 404 means no matches and
// is returned as a NOT_FOUND APIError wrapping model.ErrNotFound.
func (c *Client) SearchProducts(ctx context.Context, text string) ([]model.Product, error) {
	query := url.Values{}
	query.Set("value", text)

	var products []model.Product
	err := c.do(ctx, http.MethodGet, "/products/search", query, "", nil, &products)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound && errors.Is(err, model.ErrServiceFault) {
			return nil, model.NewNotFoundError("products")
		}
		return nil, err
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

// FetchCart returns the cart records for the bearer token.
func (c *Client) FetchCart(ctx context.Context, token string) ([]model.CartRecord, error) {
	var records []model.CartRecord
	if err := c.do(ctx, http.MethodGet, "/cart", nil, token, nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.CartRecord{}
	}
	return records, nil
}

// UpsertCart sets the quantity of one product and returns the full cart.
func (c *Client) UpsertCart(ctx context.Context, token string, req model.UpsertCartRequest) ([]model.CartRecord, error) {
	var records []model.CartRecord
	if err := c.do(ctx, http.MethodPost, "/cart", nil, token, req, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.CartRecord{}
	}
	return records, nil
}

// do performs one round trip through the circuit breaker and decodes a
// successful body into dest.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, body, dest any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(transport.RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (response, error) {
		return c.roundTrip(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = model.NewUnreachableError(serviceName, err)
	}

	c.logger.DebugContext(ctx, "storefront request",
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.status),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("ok", err == nil),
	)

	if err != nil {
		return err
	}
	if dest == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, dest); err != nil {
		return model.NewMalformedResponseError(serviceName, err)
	}
	return nil
}

// roundTrip executes req and classifies the outcome.
func (c *Client) roundTrip(req *http.Request) (response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, model.NewUnreachableError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{status: resp.StatusCode}, model.NewUnreachableError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return response{status: resp.StatusCode}, parseErrorResponse(resp.StatusCode, body)
	}
	return response{status: resp.StatusCode, body: body}, nil
}

// parseErrorResponse converts a failed response into a service APIError,
// keeping the server's message when the body has one.
func parseErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	json.Unmarshal(body, &errResp) // Best effort parse
	return model.NewServiceError(statusCode, strings.TrimSpace(errResp.Message))
}

// endpoint resolves path (and query) against the base URL, keeping any base
// path prefix such as /api/v1.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base URL %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
