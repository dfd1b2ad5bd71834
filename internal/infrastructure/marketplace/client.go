// Package marketplace implements the HTTP accessor for the remote seller
// API: one authenticated client per account, composing the rate limiter and
// the retry policy, plus the pagination walker driving list endpoints.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	domain "github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/infrastructure/config"
	"github.com/sellerbridge/backend/internal/infrastructure/logger"
	"github.com/sellerbridge/backend/internal/infrastructure/ratelimit"
)

// Resource paths on the remote API.
const (
	pathProductList = "/product_offer/read_list"
	pathOrderList   = "/order/read_list"
)

// classForResource maps a resource to its rate class. Orders have their own,
// larger budget; everything else shares "other".
func classForResource(resource domain.ResourceType) string {
	if resource == domain.ResourceOrders {
		return "orders"
	}
	return ratelimit.FallbackClass
}

// MetricsRecorder receives per-request observations from the client. A nil
// recorder disables recording.
type MetricsRecorder interface {
	RecordAPIRequest(ctx context.Context, account, resource string, statusCode int, elapsed time.Duration)
	RecordRateLimitWait(ctx context.Context, class string, waited time.Duration)
	RecordRateLimitHit(ctx context.Context, class string)
}

// Client is the authenticated HTTP accessor for one seller account. Every
// call acquires a rate-limit slot for its resource class and is wrapped by
// the retry policy.
type Client struct {
	account    domain.AccountType
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	retry      RetryConfig
	metrics    MetricsRecorder
	log        *zap.Logger
	now        func() time.Time
}

var _ domain.API = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryConfig replaces the retry policy.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for one seller account.
func NewClient(account domain.AccountType, cfg config.AccountConfig, limiter *ratelimit.Limiter, log *zap.Logger, opts ...ClientOption) (*Client, error) {
	if !account.IsValid() {
		return nil, fmt.Errorf("marketplace: invalid account %q", account)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("marketplace: account %s has no base URL", account)
	}
	if limiter == nil {
		return nil, fmt.Errorf("marketplace: limiter is required")
	}

	c := &Client{
		account:  account,
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: limiter,
		retry:   DefaultRetryConfig(),
		log:     log.Named("marketplace").With(zap.String("account", account.String())),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Account returns the seller account this client is bound to.
func (c *Client) Account() domain.AccountType {
	return c.account
}

// ListProducts fetches one page of the account's product offers.
func (c *Client) ListProducts(ctx context.Context, req domain.ListRequest) ([]domain.CatalogItem, error) {
	req.Normalize()

	results, err := c.call(ctx, domain.ResourceProducts, pathProductList, newListRequestBody(req))
	if err != nil {
		return nil, err
	}

	var payloads []productPayload
	if err := json.Unmarshal(results, &payloads); err != nil {
		return nil, fmt.Errorf("%w: malformed product list: %v", domain.ErrFatalAPI, err)
	}

	syncedAt := c.now().UTC()
	items := make([]domain.CatalogItem, 0, len(payloads))
	for i := range payloads {
		items = append(items, payloads[i].toDomain(c.account, syncedAt))
	}
	return items, nil
}

// ListOrders fetches one page of the account's orders.
func (c *Client) ListOrders(ctx context.Context, req domain.ListRequest) ([]domain.Order, error) {
	req.Normalize()

	results, err := c.call(ctx, domain.ResourceOrders, pathOrderList, newListRequestBody(req))
	if err != nil {
		return nil, err
	}

	var payloads []orderPayload
	if err := json.Unmarshal(results, &payloads); err != nil {
		return nil, fmt.Errorf("%w: malformed order list: %v", domain.ErrFatalAPI, err)
	}

	syncedAt := c.now().UTC()
	orders := make([]domain.Order, 0, len(payloads))
	for i := range payloads {
		orders = append(orders, payloads[i].toDomain(c.account, syncedAt))
	}
	return orders, nil
}

// ReadResource fetches a single resource by ID. The raw results payload is
// returned so callers own the shape.
func (c *Client) ReadResource(ctx context.Context, resource domain.ResourceType, id int64) (json.RawMessage, error) {
	body := map[string]any{"id": id}
	return c.call(ctx, resource, "/"+resource.String()+"/read", body)
}

// WriteResource saves a resource. The remote answers the updated resource or
// an error body with the explicit flag set.
func (c *Client) WriteResource(ctx context.Context, resource domain.ResourceType, payload any) (json.RawMessage, error) {
	return c.call(ctx, resource, "/"+resource.String()+"/save", payload)
}

// call acquires a rate-limit slot, then performs the request under the retry
// policy. The slot is acquired per attempt: a retry is a new request and must
// honor the budgets like any other.
func (c *Client) call(ctx context.Context, resource domain.ResourceType, path string, body any) (json.RawMessage, error) {
	class := classForResource(resource)

	return CallWithRetry(ctx, c.retry, c.account.String()+path, func(ctx context.Context) (json.RawMessage, error) {
		waitStart := c.now()
		if err := c.limiter.Acquire(ctx, class); err != nil {
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(ctx, class)
			}
			return nil, err
		}
		if c.metrics != nil {
			c.metrics.RecordRateLimitWait(ctx, class, c.now().Sub(waitStart))
		}
		return c.doRequest(ctx, class, resource, path, body)
	})
}

// doRequest performs one HTTP round trip and decodes the envelope. The audit
// contract of the remote API requires logging every exchange with enough
// context to reconstruct cause.
func (c *Client) doRequest(ctx context.Context, class string, resource domain.ResourceType, path string, body any) (json.RawMessage, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to marshal request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log := logger.WithLogger(ctx, c.log).With(
		zap.String("resource", resource.String()),
		zap.String("path", path),
	)
	log.Debug("marketplace request", zap.ByteString("body", bodyBytes))

	start := c.now()
	resp, err := c.httpClient.Do(req)
	elapsed := c.now().Sub(start)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordAPIRequest(ctx, c.account.String(), resource.String(), 0, elapsed)
		}
		log.Warn("marketplace transport failure", zap.Error(err), zap.Duration("elapsed", elapsed))
		// When our own context expired the failure is the run's wall-clock
		// budget, not the transport; keep the context error in the chain so
		// the run finalizes as timed out instead of failed.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("marketplace: request aborted: %w", ctxErr)
		}
		return nil, &domain.APIError{StatusCode: 0, Messages: []string{err.Error()}}
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordAPIRequest(ctx, c.account.String(), resource.String(), resp.StatusCode, elapsed)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to read response: %w", err)
	}

	log.Debug("marketplace response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
		zap.Int("body_size", len(respBody)),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header, c.now())
		if retryAfter == 0 {
			// Some throttled responses carry the hint in the body instead.
			var env envelope
			if json.Unmarshal(respBody, &env) == nil {
				retryAfter = env.retryAfterHint()
			}
		}
		c.limiter.Penalize(class, retryAfter)
		log.Warn("marketplace throttled", zap.Duration("retry_after", retryAfter))
		return nil, &domain.APIError{
			StatusCode: resp.StatusCode,
			Messages:   []string{"throttled by remote"},
			RetryAfter: retryAfter,
		}
	}
	if resp.StatusCode >= 400 {
		apiErr := &domain.APIError{StatusCode: resp.StatusCode}
		var env envelope
		if json.Unmarshal(respBody, &env) == nil {
			apiErr.Messages = env.messageTexts()
			apiErr.RetryAfter = env.retryAfterHint()
		}
		if !apiErr.Retryable() {
			log.Error("marketplace rejected request",
				zap.Int("status", resp.StatusCode),
				zap.Strings("messages", apiErr.Messages),
			)
			return nil, fmt.Errorf("%w: %v", domain.ErrFatalAPI, apiErr)
		}
		return nil, apiErr
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("%w: undecodable response body: %v", domain.ErrFatalAPI, err)
	}

	// HTTP 200 with the error flag set is a first-class failure, never a
	// success with caveats.
	if env.IsError {
		texts := env.messageTexts()
		log.Error("marketplace error flag set",
			zap.Int("status", resp.StatusCode),
			zap.Strings("messages", texts),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrFatalAPI,
			&domain.APIError{StatusCode: resp.StatusCode, Messages: texts})
	}

	return env.Results, nil
}
