// Package oracle provides the historical price oracle HTTP client. Prices
// are keyed by (price feed id, unix timestamp) and returned as raw
// fixed-point values at price precision.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/types"
)

// PriceSource resolves an asset price at a point in time. Satisfied by
// *Client; the reconciler depends on this interface so tests can inject
// scripted prices.
type PriceSource interface {
	HistoricalPrice(ctx context.Context, priceFeedID string, ts int64) (decimal.Decimal, error)
}

// Client queries the historical price benchmark API. The upstream is rate
// limited (HTTP 429 with a retry-after header) and occasionally has no update
// at the exact requested timestamp (HTTP 404, mitigated by retrying at
// ts+30s).
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// NewClient creates a historical price oracle client.
func NewClient(baseURL string, requestsPerSecond int, timeout time.Duration, logger *logging.Logger) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:     logger,
	}
}

// priceUpdateResponse mirrors the benchmark API response shape. The price is
// an integer string with an explicit decimal exponent.
type priceUpdateResponse struct {
	Parsed []struct {
		Price struct {
			Price string `json:"price"`
			Expo  int32  `json:"expo"`
		} `json:"price"`
	} `json:"parsed"`
}

// statusError carries the HTTP status and retry-after hint of a failed fetch.
type statusError struct {
	status     int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("oracle API returned status %d", e.status)
}

// HistoricalPrice fetches the asset price at the given unix timestamp,
// normalized to price precision. A 404 at the exact timestamp is retried once
// at ts+30s; a 429 waits out the server-provided retry delay and retries
// once. Anything else fails.
func (c *Client) HistoricalPrice(ctx context.Context, priceFeedID string, ts int64) (decimal.Decimal, error) {
	price, err := c.fetchPrice(ctx, priceFeedID, ts)
	if err == nil {
		return price, nil
	}

	var stErr *statusError
	if !errors.As(err, &stErr) {
		return decimal.Zero, err
	}

	switch stErr.status {
	case http.StatusNotFound:
		// No price update at the exact timestamp; a nearby one almost always
		// exists.
		c.logger.WithFields(map[string]interface{}{
			"priceFeedId": priceFeedID,
			"ts":          ts,
		}).Info("No oracle price at exact timestamp, retrying at ts+30s")
		return c.fetchPrice(ctx, priceFeedID, ts+30)

	case http.StatusTooManyRequests:
		delay := stErr.retryAfter + time.Second
		c.logger.WithFields(map[string]interface{}{
			"priceFeedId": priceFeedID,
			"retryAfter":  delay,
		}).Warn("Hit oracle API rate limit, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
		return c.fetchPrice(ctx, priceFeedID, ts)

	default:
		return decimal.Zero, err
	}
}

// fetchPrice performs one benchmark API request.
func (c *Client) fetchPrice(ctx context.Context, priceFeedID string, ts int64) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	query := url.Values{"ids": {priceFeedID}}
	endpoint := fmt.Sprintf("%s/v1/updates/price/%d?%s", c.baseURL, ts, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build oracle request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) // nolint:errcheck // drain for connection reuse
		return decimal.Zero, &statusError{
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var body priceUpdateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	if len(body.Parsed) == 0 {
		return decimal.Zero, fmt.Errorf("oracle response contained no price for feed %s", priceFeedID)
	}

	raw, err := decimal.NewFromString(body.Parsed[0].Price.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse oracle price %q: %w", body.Parsed[0].Price.Price, err)
	}

	// Normalize from the feed's exponent to price precision: the feed value
	// is raw*10^expo, the stored value is price*10^PricePrecisionExp.
	return raw.Shift(body.Parsed[0].Price.Expo + types.PricePrecisionExp).Truncate(0), nil
}

func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return time.Second
	}
	return time.Duration(seconds) * time.Second
}
