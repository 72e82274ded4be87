package network

import (
	"context"
	"net/http"
	"time"
)

// RetryCondition reports whether a request outcome should be retried.
// Either resp or err may be nil.
type RetryCondition func(resp *http.Response, err error) bool

// RetryHook fires before each retry wait, for observability. attempt is the
// attempt number that just failed (1-based).
type RetryHook func(attempt int, err error)

// Middleware wraps the transport call for cross-cutting concerns.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc adapts a function to the RoundTripper interface.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// FingerprintFunc maps a request to its canonical identity string. Two
// requests with equal fingerprints are treated as interchangeable by the
// cache and the single-flight table. Implementations must be pure and
// deterministic; the engine treats them as a black box.
type FingerprintFunc func(*http.Request) string

// CacheCondition decides whether a request is eligible for caching.
type CacheCondition func(req *http.Request) bool

// DeduplicationCondition decides whether a request is eligible for
// single-flight collapsing.
type DeduplicationCondition func(req *http.Request) bool

// Option configures a Client.
type Option func(*Client)

// Context keys for per-request overrides.
type contextKey string

const (
	cacheControlKey contextKey = "network_cache_control"
	skipRetryKey    contextKey = "network_skip_retry"
	skipAuthKey     contextKey = "network_skip_auth"
	retryPolicyKey  contextKey = "network_retry_policy"
)

// CacheControl holds per-request cache overrides carried on the context.
type CacheControl struct {
	Enabled bool
	TTL     time.Duration
}

// WithContextCacheEnabled forces caching for the request carried by ctx.
func WithContextCacheEnabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: true})
}

// WithContextCacheDisabled disables caching for the request carried by ctx.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: false})
}

// WithContextCacheTTL enables caching with a per-request TTL.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: true, TTL: ttl})
}

// WithContextSkipRetry disables the retry engine for this request; exactly
// one attempt is made.
func WithContextSkipRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRetryKey, true)
}

// WithContextSkipAuth disables credential attachment and the replay-once
// protocol for this request.
func WithContextSkipAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthKey, true)
}

// WithContextRetryPolicy overrides the client retry policy for this request.
func WithContextRetryPolicy(ctx context.Context, policy *RetryPolicy) context.Context {
	return context.WithValue(ctx, retryPolicyKey, policy)
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	HitRate float64
	Size    int
}

// RetryStats is a point-in-time snapshot of retry engine activity.
type RetryStats struct {
	Attempts  uint64
	Retries   uint64
	Exhausted uint64
}

// DeduplicationStats is a point-in-time snapshot of single-flight activity.
type DeduplicationStats struct {
	TotalRequests        uint64
	DeduplicatedRequests uint64
	ActiveFlights        int
}
