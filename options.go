package network

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		if c.httpClient != nil && c.timeout != 0 {
			c.httpClient.Timeout = c.timeout
		}
	}
}

// WithTimeout sets the per-request transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithMiddleware appends middleware to the transport chain.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithRetryPolicy replaces the whole retry policy.
func WithRetryPolicy(policy *RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithMaxAttempts bounds the total attempts per request, including the
// first. 1 disables retries.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.retryPolicy.MaxAttempts = n
	}
}

// WithRetryCondition sets the predicate deciding retry eligibility.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryPolicy.ShouldRetry = fn
	}
}

// WithRetryHook sets a hook fired before each retry wait.
func WithRetryHook(fn RetryHook) Option {
	return func(c *Client) {
		c.retryPolicy.OnRetry = fn
	}
}

// WithCache enables response caching with the default bounded in-memory
// store and the given TTL.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.wantDefaultCache = true
		c.cacheTTL = ttl
	}
}

// WithCustomCache sets a custom cache backing store.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithCacheCapacity bounds the default in-memory cache. When full it evicts
// in insertion order. Ignored with WithCustomCache.
func WithCacheCapacity(maxEntries int) Option {
	return func(c *Client) {
		c.cacheCapacity = maxEntries
	}
}

// WithCacheCondition sets the predicate deciding cache eligibility.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithFingerprint replaces the request identity function used by both the
// cache and the single-flight table. The function must be pure and
// deterministic; requests mapping to the same string are treated as
// interchangeable.
func WithFingerprint(fn FingerprintFunc) Option {
	return func(c *Client) {
		c.fingerprint = fn
	}
}

// WithDeduplication enables single-flight collapsing of concurrent
// identical requests.
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedupEnabled = true
	}
}

// WithDeduplicationCondition sets the predicate deciding which requests may
// be collapsed.
func WithDeduplicationCondition(fn DeduplicationCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithFlightTimeout sets the staleness age after which an in-flight entry
// is force-evicted by the sweep. Default: twice the client timeout.
func WithFlightTimeout(maxAge time.Duration) Option {
	return func(c *Client) {
		c.flightMaxAge = maxAge
	}
}

// WithFlightSweepInterval sets how often the staleness sweep runs.
func WithFlightSweepInterval(d time.Duration) Option {
	return func(c *Client) {
		c.flightSweepEvery = d
	}
}

// WithAuth enables credential handling: attachment of the bearer
// credential, serialized refresh and the replay-once protocol.
func WithAuth(cfg AuthConfig) Option {
	return func(c *Client) {
		c.authCfg = &cfg
	}
}

// WithCircuitBreaker enables the circuit breaker.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithRateLimiter enables token-bucket rate limiting.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(maxTokens, refillRate)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns a
// Validation-typed ClientError if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateTransportConfig()...)
	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateCacheConfig()...)
	problems = append(problems, c.validateFlightConfig()...)
	problems = append(problems, c.validateAuthConfig()...)
	problems = append(problems, c.validateBreakerConfig()...)
	problems = append(problems, c.validateRateLimiterConfig()...)
	problems = append(problems, c.validateDebugConfig()...)

	if len(problems) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}

func (c *Client) validateTransportConfig() []string {
	var problems []string
	if c.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}
	if c.timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.fingerprint == nil {
		problems = append(problems, "fingerprint function cannot be nil")
	}
	for i, middleware := range c.middleware {
		if middleware == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}
	return problems
}

func (c *Client) validateRetryConfig() []string {
	var problems []string
	if c.retryPolicy == nil {
		return append(problems, "retry policy cannot be nil")
	}
	if c.retryPolicy.MaxAttempts < 1 {
		problems = append(problems, "retry MaxAttempts must be at least 1")
	}
	if c.retryPolicy.BaseDelay < 0 {
		problems = append(problems, "retry BaseDelay must be non-negative")
	}
	if c.retryPolicy.MaxDelay > 0 && c.retryPolicy.MaxDelay < c.retryPolicy.BaseDelay {
		problems = append(problems, "retry MaxDelay must be greater than or equal to BaseDelay")
	}
	if c.retryPolicy.BackoffFactor < 0 {
		problems = append(problems, "retry BackoffFactor must be non-negative")
	}
	if c.retryPolicy.MaxAttempts > 100 {
		problems = append(problems, "retry MaxAttempts > 100 may cause excessive resource usage")
	}
	return problems
}

func (c *Client) validateCacheConfig() []string {
	var problems []string
	if (c.cache != nil || c.wantDefaultCache) && c.cacheTTL <= 0 {
		problems = append(problems, "cacheTTL must be positive when cache is enabled")
	}
	if c.cacheCapacity < 0 {
		problems = append(problems, "cache capacity must be non-negative")
	}
	if (c.cache != nil || c.wantDefaultCache) && c.cacheCondition == nil {
		problems = append(problems, "cache condition must be set when cache is enabled")
	}
	return problems
}

func (c *Client) validateFlightConfig() []string {
	var problems []string
	if c.dedupEnabled {
		if c.dedupCondition == nil {
			problems = append(problems, "deduplication condition must be set when deduplication is enabled")
		}
		if c.flightSweepEvery < 0 {
			problems = append(problems, "flight sweep interval must be non-negative")
		}
		if c.flightMaxAge < 0 {
			problems = append(problems, "flight timeout must be non-negative")
		}
	}
	return problems
}

func (c *Client) validateAuthConfig() []string {
	var problems []string
	if c.authCfg == nil {
		return problems
	}
	for _, endpoint := range []struct{ name, value string }{
		{"LoginURL", c.authCfg.LoginURL},
		{"RefreshURL", c.authCfg.RefreshURL},
	} {
		if endpoint.value == "" {
			continue
		}
		u, err := url.Parse(endpoint.value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("auth %s must be an absolute URL", endpoint.name))
		}
	}
	if c.authCfg.RefreshThreshold < 0 {
		problems = append(problems, "auth RefreshThreshold must be non-negative")
	}
	return problems
}

func (c *Client) validateBreakerConfig() []string {
	var problems []string
	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			problems = append(problems, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			problems = append(problems, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			problems = append(problems, "circuitBreaker SuccessThreshold must be positive")
		}
	}
	return problems
}

func (c *Client) validateRateLimiterConfig() []string {
	var problems []string
	if c.rateLimiter != nil {
		if c.rateLimiter.maxTokens <= 0 {
			problems = append(problems, "rateLimiter maxTokens must be positive")
		}
		if c.rateLimiter.refillRate <= 0 {
			problems = append(problems, "rateLimiter refillRate must be positive")
		}
	}
	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string
	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}
	return problems
}
