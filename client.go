package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jarc0s/jarcos-node-network/internal/flight"
)

// Client is an outbound HTTP request orchestrator. Around a standard
// net/http transport it layers request fingerprinting, single-flight
// collapsing, TTL response caching, retries with backoff, credential
// refresh with replay-once, circuit breaking, rate limiting, metrics and
// debug logging. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	middleware []Middleware

	retryPolicy *RetryPolicy

	cache            Cache
	wantDefaultCache bool
	cacheTTL         time.Duration
	cacheCapacity    int
	cacheCondition   CacheCondition

	fingerprint FingerprintFunc

	flights          *flight.Table
	dedupEnabled     bool
	dedupCondition   DeduplicationCondition
	flightSweepEvery time.Duration
	flightMaxAge     time.Duration

	auth    *Authenticator
	authCfg *AuthConfig

	circuitBreaker *CircuitBreaker
	rateLimiter    *RateLimiter

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	retryAttempts  uint64
	retriesDone    uint64
	retryExhausted uint64
	cacheHits      uint64
	cacheMisses    uint64

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout:          30 * time.Second,
		retryPolicy:      DefaultRetryPolicy(),
		cacheTTL:         5 * time.Minute,
		cacheCapacity:    1024,
		cacheCondition:   DefaultCacheCondition,
		fingerprint:      DefaultFingerprint,
		dedupCondition:   DefaultDeduplicationCondition,
		flightSweepEvery: 30 * time.Second,
		debug:            DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	// Assemble the pieces whose construction depends on other options.
	if client.wantDefaultCache && client.cache == nil {
		client.cache = NewInMemoryCache(client.cacheCapacity)
	}
	if client.dedupEnabled && client.flights == nil {
		maxAge := client.flightMaxAge
		if maxAge <= 0 {
			maxAge = 2 * client.timeout
		}
		client.flights = flight.New(client.flightSweepEvery, maxAge)
	}
	if client.authCfg != nil && client.auth == nil {
		client.auth = NewAuthenticator(*client.authCfg, RoundTripperFunc(client.httpClient.Do))
		client.auth.logger = client.logger
		client.auth.debug = client.debug
		client.auth.metrics = client.metrics
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Close releases background resources (the single-flight staleness sweeper).
// The client must not be used after Close.
func (c *Client) Close() {
	if c.flights != nil {
		c.flights.Close()
	}
}

// Get performs an HTTP GET with context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Head performs an HTTP HEAD with context.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post performs an HTTP POST with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Put performs an HTTP PUT with the given content type.
func (c *Client) Put(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Delete performs an HTTP DELETE with context.
func (c *Client) Delete(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// callState carries per-logical-request flags through the execution chain.
// In particular authReplayed implements the replay-once protocol: it is
// scoped to one Do call, never to the Client.
type callState struct {
	requestID    string
	start        time.Time
	authReplayed bool
}

// Do executes a prepared *http.Request applying all orchestration layers in
// order: validate, fingerprint, single-flight collapse, cache probe,
// retry-wrapped execution with credential attach and replay-once, cache
// write. Every collapsed caller receives the identical outcome.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}

	start := time.Now()
	endpoint := endpointOf(req)
	st := &callState{start: start}
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		st.requestID = c.debug.RequestIDGen()
	}

	if err := validateRequest(req); err != nil {
		c.metrics.RecordError(ErrorTypeValidation, req.Method, endpoint)
		return nil, err
	}

	c.logRequest(st, "starting request", "method", req.Method, "url", req.URL.String())
	c.metrics.RecordRequestStart(req.Method, endpoint)
	defer c.metrics.RecordRequestEnd(req.Method, endpoint)

	key := c.fingerprint(req)
	ctx := req.Context()

	dedupEnabled := c.flights != nil && c.dedupCondition(req)
	cacheEnabled := c.cacheEligible(req)

	var resp *http.Response
	var err error

	switch {
	case dedupEnabled:
		var val interface{}
		var shared bool
		val, shared, err = c.flights.Do(ctx, key, func(flightCtx context.Context) (interface{}, error) {
			return c.runRequest(flightCtx, req, key, st, cacheEnabled)
		})
		if shared {
			c.metrics.RecordDeduplicationHit(req.Method, endpoint)
			c.logDedup(st, "request collapsed into in-flight execution", "fingerprint", key)
		}
		if errors.Is(err, flight.ErrEvicted) {
			c.metrics.RecordFlightEviction()
			err = &ClientError{
				Type:      ErrorTypeTimeout,
				Message:   "collapsed request cancelled by staleness sweep",
				Cause:     ErrCollapsedCancelled,
				Method:    req.Method,
				URL:       req.URL.String(),
				Endpoint:  endpoint,
				RequestID: st.requestID,
				Timestamp: time.Now(),
			}
		}
		if err == nil {
			resp = val.(*bufferedResponse).response()
		}
	case cacheEnabled:
		var br *bufferedResponse
		br, err = c.runRequest(ctx, req, key, st, true)
		if err == nil {
			resp = br.response()
		}
	default:
		resp, err = c.runAttempts(ctx, req, st)
	}

	duration := time.Since(start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(req.Method, endpoint, statusCode, duration)
	if err != nil {
		c.recordTypedError(err, req.Method, endpoint)
	}

	return resp, c.decorateError(err, req, st)
}

// runRequest is the single logical execution behind a fingerprint: cache
// probe, retry-wrapped transport call, cache write. The result is buffered
// so it can be handed to every collapsed caller and stored.
func (c *Client) runRequest(ctx context.Context, req *http.Request, key string, st *callState, cacheEnabled bool) (*bufferedResponse, error) {
	endpoint := endpointOf(req)

	if cacheEnabled {
		entry, found, err := c.cache.Get(key)
		if err != nil {
			c.logCache(st, "cache read failed, treating as miss", "fingerprint", key, "error", err)
			c.metrics.RecordError(ErrorTypeCache, req.Method, endpoint)
			found = false
		}
		if found {
			atomic.AddUint64(&c.cacheHits, 1)
			c.metrics.RecordCacheHit(req.Method, endpoint)
			c.logCache(st, "cache hit", "fingerprint", key, "hits", entry.Hits())
			return bufferedFromEntry(entry), nil
		}
		atomic.AddUint64(&c.cacheMisses, 1)
		c.metrics.RecordCacheMiss(req.Method, endpoint)
		c.logCache(st, "cache miss", "fingerprint", key)
	}

	resp, err := c.runAttempts(ctx, req, st)
	if err != nil {
		return nil, err
	}

	br, err := bufferResponse(resp)
	if err != nil {
		return nil, &ClientError{
			Type:      ErrorTypeNetwork,
			Message:   "reading response body",
			Cause:     err,
			Timestamp: time.Now(),
		}
	}

	if cacheEnabled && br.StatusCode < 400 {
		ttl := c.ttlFor(ctx)
		entry := &CacheEntry{
			StatusCode: br.StatusCode,
			Header:     br.Header.Clone(),
			Body:       br.Body,
		}
		if err := c.cache.Set(key, entry, ttl); err != nil {
			c.logCache(st, "cache write failed", "fingerprint", key, "error", err)
			c.metrics.RecordError(ErrorTypeCache, req.Method, endpoint)
		} else {
			c.metrics.RecordCacheSize("default", c.cache.Len())
			c.logCache(st, "response cached", "fingerprint", key, "ttl", ttl)
		}
	}

	return br, nil
}

// runAttempts wraps one transport execution with the retry engine, unless
// retries are disabled for this call.
func (c *Client) runAttempts(ctx context.Context, req *http.Request, st *callState) (*http.Response, error) {
	endpoint := endpointOf(req)

	op := func(attemptCtx context.Context) (*http.Response, error) {
		atomic.AddUint64(&c.retryAttempts, 1)
		return c.executeAttempt(attemptCtx, req, st)
	}

	if skipRetry(ctx) {
		return op(ctx)
	}

	policy := c.policyFor(ctx)
	engine := *policy
	userHook := policy.OnRetry
	engine.OnRetry = func(attempt int, err error) {
		atomic.AddUint64(&c.retriesDone, 1)
		c.metrics.RecordRetry(req.Method, endpoint, attempt)
		c.logRetry(st, "scheduling retry", "attempt", attempt, "maxAttempts", engine.MaxAttempts, "error", err)
		if userHook != nil {
			userHook(attempt, err)
		}
	}

	resp, err := RunWithRetry(ctx, &engine, op)
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) && clientErr.Type == ErrorTypeRetryExhausted {
			atomic.AddUint64(&c.retryExhausted, 1)
		}
	}
	return resp, err
}

// executeAttempt performs a single transport call: local admission (rate
// limiter, circuit breaker), credential attach, middleware chain, and the
// replay-once protocol on an authorization-denied response.
func (c *Client) executeAttempt(ctx context.Context, req *http.Request, st *callState) (*http.Response, error) {
	endpoint := endpointOf(req)

	if c.rateLimiter != nil {
		if !c.rateLimiter.Allow() {
			c.logRateLimit(st, "rate limit exceeded", "endpoint", endpoint)
			return nil, &ClientError{
				Type:      ErrorTypeRateLimit,
				Message:   "rate limit exceeded",
				Cause:     ErrRateLimited,
				Timestamp: time.Now(),
			}
		}
		c.metrics.RecordRateLimiterTokens("default", c.rateLimiter.Tokens())
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		c.logCircuit(st, "circuit breaker open", "endpoint", endpoint)
		return nil, &ClientError{
			Type:      ErrorTypeCircuitOpen,
			Message:   "circuit breaker is open",
			Cause:     ErrCircuitOpen,
			Timestamp: time.Now(),
		}
	}

	authEnabled := c.auth != nil && !skipAuth(ctx)

	attemptReq, err := c.attemptRequest(ctx, req, authEnabled)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport(attemptReq)
	c.recordOutcome(resp, err)

	if err == nil && resp.StatusCode == http.StatusUnauthorized && authEnabled && !st.authReplayed {
		// Replay-once: mark before refreshing so a second 401 on this
		// call can never trigger another refresh-and-replay loop.
		st.authReplayed = true
		drainResponse(resp)
		c.logAuth(st, "authorization denied, refreshing credential")

		if _, refreshErr := c.auth.RefreshCredential(ctx); refreshErr != nil {
			return nil, refreshErr
		}

		replayReq, err := c.attemptRequest(ctx, req, true)
		if err != nil {
			return nil, err
		}
		resp, err = c.transport(replayReq)
		c.recordOutcome(resp, err)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			// Terminal: the refreshed credential was rejected too.
			drainResponse(resp)
			_ = c.auth.Logout(context.WithoutCancel(ctx))
			c.logAuth(st, "credential rejected after refresh, clearing credentials")
			return nil, &ClientError{
				Type:       ErrorTypeAuth,
				Message:    "credential rejected after refresh",
				StatusCode: http.StatusUnauthorized,
				Timestamp:  time.Now(),
			}
		}
		return resp, nil
	}

	return resp, err
}

// attemptRequest clones the request for one attempt, restoring a replayable
// body and attaching the current credential when auth applies.
func (c *Client) attemptRequest(ctx context.Context, req *http.Request, authEnabled bool) (*http.Request, error) {
	attemptReq := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, &ClientError{
				Type:      ErrorTypeValidation,
				Message:   "request body is not replayable",
				Cause:     err,
				Timestamp: time.Now(),
			}
		}
		attemptReq.Body = body
	}

	if authEnabled {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return nil, err
		}
		attemptReq.Header.Set(c.auth.cfg.Header, c.auth.cfg.Scheme+" "+token)
	}

	return attemptReq, nil
}

// transport runs the middleware chain ending at the underlying HTTP client.
func (c *Client) transport(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}
	return current.RoundTrip(req)
}

// recordOutcome feeds the circuit breaker and state gauges after a
// transport call.
func (c *Client) recordOutcome(resp *http.Response, err error) {
	if c.circuitBreaker == nil {
		return
	}
	if err != nil || (resp != nil && resp.StatusCode >= 500) {
		c.circuitBreaker.RecordFailure()
	} else {
		c.circuitBreaker.RecordSuccess()
	}
	c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
}

// Login exchanges credentials at the configured login endpoint and persists
// the returned CredentialSet.
func (c *Client) Login(ctx context.Context, credentials interface{}) (*CredentialSet, error) {
	if c.auth == nil {
		return nil, errAuthNotConfigured()
	}
	return c.auth.Login(ctx, credentials)
}

// Logout clears stored credentials.
func (c *Client) Logout(ctx context.Context) error {
	if c.auth == nil {
		return errAuthNotConfigured()
	}
	return c.auth.Logout(ctx)
}

// RefreshCredential forces a credential refresh, joining one already in
// flight.
func (c *Client) RefreshCredential(ctx context.Context) (*CredentialSet, error) {
	if c.auth == nil {
		return nil, errAuthNotConfigured()
	}
	return c.auth.RefreshCredential(ctx)
}

// InvalidateCache removes cached entries whose fingerprint matches pattern
// and returns how many were removed. An empty pattern clears the cache. A
// pattern without '*' matches by substring; with '*' it must match the
// whole key, '*' spanning any run of characters.
func (c *Client) InvalidateCache(pattern string) (int, error) {
	if c.cache == nil {
		return 0, nil
	}

	if pattern == "" {
		removed := c.cache.Len()
		if err := c.cache.Clear(); err != nil {
			return 0, &ClientError{Type: ErrorTypeCache, Message: "clearing cache", Cause: err, Timestamp: time.Now()}
		}
		return removed, nil
	}

	keys, err := c.cache.Keys()
	if err != nil {
		return 0, &ClientError{Type: ErrorTypeCache, Message: "listing cache keys", Cause: err, Timestamp: time.Now()}
	}

	removed := 0
	for _, key := range keys {
		if matchPattern(pattern, key) {
			if err := c.cache.Delete(key); err != nil {
				return removed, &ClientError{Type: ErrorTypeCache, Message: "deleting cache entry", Cause: err, Timestamp: time.Now()}
			}
			removed++
		}
	}
	return removed, nil
}

// GetCacheStats returns a snapshot of cache effectiveness for this client.
func (c *Client) GetCacheStats() CacheStats {
	hits := atomic.LoadUint64(&c.cacheHits)
	misses := atomic.LoadUint64(&c.cacheMisses)
	stats := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	if c.cache != nil {
		stats.Size = c.cache.Len()
	}
	return stats
}

// GetRetryStats returns a snapshot of retry engine activity.
func (c *Client) GetRetryStats() RetryStats {
	return RetryStats{
		Attempts:  atomic.LoadUint64(&c.retryAttempts),
		Retries:   atomic.LoadUint64(&c.retriesDone),
		Exhausted: atomic.LoadUint64(&c.retryExhausted),
	}
}

// GetDeduplicationStats returns a snapshot of single-flight activity.
func (c *Client) GetDeduplicationStats() DeduplicationStats {
	if c.flights == nil {
		return DeduplicationStats{}
	}
	total, shared, _ := c.flights.Counters()
	return DeduplicationStats{
		TotalRequests:        total,
		DeduplicatedRequests: shared,
		ActiveFlights:        c.flights.Active(),
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// cacheEligible applies the per-request override, then the configured
// condition.
func (c *Client) cacheEligible(req *http.Request) bool {
	if c.cache == nil {
		return false
	}
	if control, ok := req.Context().Value(cacheControlKey).(*CacheControl); ok {
		return control.Enabled
	}
	return c.cacheCondition(req)
}

func (c *Client) ttlFor(ctx context.Context) time.Duration {
	if control, ok := ctx.Value(cacheControlKey).(*CacheControl); ok && control.TTL > 0 {
		return control.TTL
	}
	return c.cacheTTL
}

func (c *Client) policyFor(ctx context.Context) *RetryPolicy {
	if policy, ok := ctx.Value(retryPolicyKey).(*RetryPolicy); ok && policy != nil {
		return policy
	}
	return c.retryPolicy
}

func skipRetry(ctx context.Context) bool {
	skip, _ := ctx.Value(skipRetryKey).(bool)
	return skip
}

func skipAuth(ctx context.Context) bool {
	skip, _ := ctx.Value(skipAuthKey).(bool)
	return skip
}

// decorateError fills request context into the outgoing ClientError without
// overwriting what inner layers already set. Collapsed callers receive the
// same error value from the flight table, so the blanks are filled on a
// copy; the shared error is never written to.
func (c *Client) decorateError(err error, req *http.Request, st *callState) error {
	if err == nil {
		return nil
	}
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return err
	}
	if clientErr.Method != "" && clientErr.URL != "" && clientErr.Endpoint != "" &&
		clientErr.RequestID != "" && clientErr.Duration != 0 {
		return err
	}
	decorated := *clientErr
	if decorated.Method == "" {
		decorated.Method = req.Method
	}
	if decorated.URL == "" && req.URL != nil {
		decorated.URL = req.URL.String()
	}
	if decorated.Endpoint == "" {
		decorated.Endpoint = endpointOf(req)
	}
	if decorated.RequestID == "" {
		decorated.RequestID = st.requestID
	}
	if decorated.Duration == 0 {
		decorated.Duration = time.Since(st.start)
	}
	return &decorated
}

func (c *Client) recordTypedError(err error, method, endpoint string) {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		c.metrics.RecordError(clientErr.Type, method, endpoint)
		return
	}
	c.metrics.RecordError(ErrorTypeNetwork, method, endpoint)
}

func errAuthNotConfigured() *ClientError {
	return &ClientError{
		Type:      ErrorTypeValidation,
		Message:   "authentication is not configured",
		Timestamp: time.Now(),
	}
}

// validMethods mirrors the methods the orchestrator will send.
var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
	http.MethodOptions: true,
}

// validateRequest fails fast on malformed input before any network
// activity.
func validateRequest(req *http.Request) error {
	if req == nil {
		return &ClientError{Type: ErrorTypeValidation, Message: "request is nil", Timestamp: time.Now()}
	}
	if !validMethods[req.Method] {
		return &ClientError{
			Type:      ErrorTypeValidation,
			Message:   fmt.Sprintf("invalid HTTP method %q", req.Method),
			Timestamp: time.Now(),
		}
	}
	if req.URL == nil || req.URL.Scheme == "" || req.URL.Host == "" {
		return &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "request URL must be absolute",
			Method:    req.Method,
			Timestamp: time.Now(),
		}
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return &ClientError{
			Type:      ErrorTypeValidation,
			Message:   fmt.Sprintf("unsupported URL scheme %q", req.URL.Scheme),
			Method:    req.Method,
			Timestamp: time.Now(),
		}
	}
	for name, values := range req.Header {
		for _, value := range values {
			if strings.ContainsAny(value, "\r\n") {
				return &ClientError{
					Type:      ErrorTypeValidation,
					Message:   fmt.Sprintf("header %q contains control characters", name),
					Method:    req.Method,
					Timestamp: time.Now(),
				}
			}
		}
	}
	return nil
}

// endpointOf returns a low-cardinality endpoint label for metrics and logs.
func endpointOf(req *http.Request) string {
	if req == nil || req.URL == nil {
		return "unknown"
	}

	host := req.URL.Host
	path := req.URL.Path

	var builder strings.Builder
	builder.WriteString(host)
	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}

// bufferedResponse is the shareable response envelope handed to collapsed
// callers and stored in the cache. Each caller gets an independent body
// reader over the same bytes.
type bufferedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func bufferResponse(resp *http.Response) (*bufferedResponse, error) {
	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		closeErr := resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
	}
	return &bufferedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func bufferedFromEntry(entry *CacheEntry) *bufferedResponse {
	return &bufferedResponse{
		StatusCode: entry.StatusCode,
		Header:     entry.Header,
		Body:       entry.Body,
	}
}

func (br *bufferedResponse) response() *http.Response {
	header := br.Header
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    br.StatusCode,
		Status:        fmt.Sprintf("%d %s", br.StatusCode, http.StatusText(br.StatusCode)),
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(br.Body)),
		ContentLength: int64(len(br.Body)),
	}
}

// matchPattern matches a cache key against an invalidation pattern: without
// '*' a substring test, with '*' a whole-key wildcard match.
func matchPattern(pattern, key string) bool {
	if !strings.Contains(pattern, "*") {
		return strings.Contains(key, pattern)
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	key = key[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(key, part)
		if idx < 0 {
			return false
		}
		key = key[idx+len(part):]
	}
	return strings.HasSuffix(key, parts[len(parts)-1])
}

func (c *Client) logRequest(st *callState, msg string, kv ...interface{}) {
	c.logEvent(c.debug != nil && c.debug.LogRequests, st, msg, kv...)
}

func (c *Client) logRetry(st *callState, msg string, kv ...interface{}) {
	c.logEvent(c.debug != nil && c.debug.LogRetries, st, msg, kv...)
}

func (c *Client) logCache(st *callState, msg string, kv ...interface{}) {
	c.logEvent(c.debug != nil && c.debug.LogCache, st, msg, kv...)
}

func (c *Client) logDedup(st *callState, msg string, kv ...interface{}) {
	c.logEvent(c.debug != nil && c.debug.LogDedup, st, msg, kv...)
}

func (c *Client) logAuth(st *callState, msg string, kv ...interface{}) {
	c.logEvent(c.debug != nil && c.debug.LogAuth, st, msg, kv...)
}

func (c *Client) logCircuit(st *callState, msg string, kv ...interface{}) {
	c.logEvent(c.debug != nil && c.debug.LogCircuit, st, msg, kv...)
}

func (c *Client) logRateLimit(st *callState, msg string, kv ...interface{}) {
	c.logEvent(c.debug != nil && c.debug.LogRateLimit, st, msg, kv...)
}

func (c *Client) logEvent(enabled bool, st *callState, msg string, kv ...interface{}) {
	if c.debug == nil || !c.debug.Enabled || !enabled || c.logger == nil {
		return
	}
	if st != nil && st.requestID != "" {
		kv = append(kv, "requestID", st.requestID)
	}
	c.logger.Debug(msg, kv...)
}
