// Package transport holds the HTTP plumbing shared by the remote lookups and
// prediction services.
package transport

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient matches the Do method of *http.Client so tests and callers can
// inject their own transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultRequestInterval is the minimum spacing between requests to one service.
const DefaultRequestInterval = 200 * time.Millisecond

// DefaultUserAgent is sent with every outbound request.
const DefaultUserAgent = "contracta/1.0"

// RateLimitedHTTPClient wraps an HTTPClient with a token-bucket limiter.
// Waiting honors the request context.
type RateLimitedHTTPClient struct {
	underlying HTTPClient
	limiter    *rate.Limiter
}

// NewRateLimitedHTTPClient allows one request per interval with a burst of
// one. A non-positive interval disables limiting.
func NewRateLimitedHTTPClient(underlying HTTPClient, interval time.Duration) *RateLimitedHTTPClient {
	if underlying == nil {
		underlying = http.DefaultClient
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimitedHTTPClient{
		underlying: underlying,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Do waits for the limiter and sends the request.
func (rateLimitedClient *RateLimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if err := rateLimitedClient.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return rateLimitedClient.underlying.Do(req)
}
