package network

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// Error type constants used in ClientError.Type to classify failures.
const (
	// ErrorTypeNetwork covers connection-level failures (DNS, refused,
	// reset) reported by the transport.
	ErrorTypeNetwork = "Network"
	// ErrorTypeTimeout covers client-side timeouts and deadline expiry.
	ErrorTypeTimeout = "Timeout"
	// ErrorTypeServer covers 5xx responses surfaced as errors.
	ErrorTypeServer = "Server"
	// ErrorTypeClient covers non-retryable 4xx responses surfaced as errors.
	ErrorTypeClient = "Client"
	// ErrorTypeAuth covers credential failures: 401 after replay, refresh
	// failure, missing credentials. Never retried by the generic engine.
	ErrorTypeAuth = "Auth"
	// ErrorTypeValidation covers malformed input rejected before any
	// network activity, including invalid client configuration.
	ErrorTypeValidation = "Validation"
	// ErrorTypeCache covers backing-store failures. These are logged and
	// degrade to a cache miss; they never surface from Do.
	ErrorTypeCache = "Cache"
	// ErrorTypeRateLimit indicates the local token bucket denied the request.
	ErrorTypeRateLimit = "RateLimit"
	// ErrorTypeCircuitOpen indicates the circuit breaker rejected the request.
	ErrorTypeCircuitOpen = "CircuitOpen"
	// ErrorTypeRetryExhausted wraps the final underlying error once the
	// retry budget is spent. Cause carries the original failure.
	ErrorTypeRetryExhausted = "RetryExhausted"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	ErrCircuitOpen = errors.New("network: circuit open")

	// ErrRateLimited is returned when a request is denied due to rate limiting.
	ErrRateLimited = errors.New("network: rate limited")

	// ErrCollapsedCancelled is returned to collapsed callers whose
	// single-flight entry was evicted by the staleness sweep while they
	// were waiting.
	ErrCollapsedCancelled = errors.New("network: collapsed request cancelled")

	// ErrNoCredentials is returned when an authenticated request is issued
	// with no stored credential and no way to obtain one.
	ErrNoCredentials = errors.New("network: no credentials available")
)

// ClientError is the typed error surfaced by the client. Type classifies the
// failure; the remaining fields carry request context for diagnostics.
type ClientError struct {
	Type        string
	Message     string
	Cause       error
	RequestID   string
	Method      string
	URL         string
	Endpoint    string
	StatusCode  int
	Body        []byte
	Attempt     int
	MaxAttempts int
	Timestamp   time.Time
	Duration    time.Duration
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if len(e.Body) > 0 {
		info += fmt.Sprintf("Body: %s\n", e.Body)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxAttempts)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTransient determines if an error represents a transient failure that
// might succeed on retry. Returns true for connection-level errors, timeouts,
// 5xx responses and local rate limiting. Returns false for auth, validation
// and other 4xx failures (except 408/429).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeCircuitOpen:
			return true
		case ErrorTypeClient:
			return clientErr.StatusCode == 408 || clientErr.StatusCode == 429
		default:
			return false
		}
	}

	return isConnectionError(err)
}

// isConnectionError reports whether err is a connection-level failure:
// timeout, DNS resolution, connection refused or connection reset.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
