package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jarc0s/jarcos-node-network/internal/backoff"
)

// RetryPolicy specifies how the retry engine reacts to a failed attempt.
// The zero value of any field falls back to the corresponding default.
type RetryPolicy struct {
	// MaxAttempts bounds the total number of attempts, including the first
	// (so MaxAttempts = 1 disables retries). Default 3.
	MaxAttempts int
	// BaseDelay is the delay before the first retry. Default 100ms.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff. Default 10s.
	MaxDelay time.Duration
	// BackoffFactor is the exponential multiplier per attempt. Default 2.
	BackoffFactor float64
	// Jitter perturbs each delay by ±10% when true.
	Jitter bool
	// ShouldRetry decides retry eligibility. Default DefaultRetryCondition.
	ShouldRetry RetryCondition
	// OnRetry fires before each retry wait.
	OnRetry RetryHook
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		ShouldRetry:   DefaultRetryCondition,
	}
}

func (p *RetryPolicy) normalized() RetryPolicy {
	n := RetryPolicy{}
	if p != nil {
		n = *p
	}
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = 3
	}
	if n.BaseDelay <= 0 {
		n.BaseDelay = 100 * time.Millisecond
	}
	if n.MaxDelay <= 0 {
		n.MaxDelay = 10 * time.Second
	}
	if n.BackoffFactor < 1 {
		n.BackoffFactor = 2.0
	}
	if n.ShouldRetry == nil {
		n.ShouldRetry = DefaultRetryCondition
	}
	return n
}

// delayFor computes the wait before retrying failed attempt number attempt
// (1-based). A Retry-After header on the response takes precedence over the
// computed backoff.
func (p *RetryPolicy) delayFor(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			return d
		}
	}
	d := backoff.Delay(attempt, p.BaseDelay, p.MaxDelay, p.BackoffFactor)
	if p.Jitter {
		d = backoff.Jitter(d, 0.1)
	}
	return d
}

// DefaultRetryCondition retries connection-level failures (DNS, refused,
// reset, timeout) and responses with status 408, 429 or 5xx. Auth,
// validation and other client errors are not retried.
func DefaultRetryCondition(resp *http.Response, err error) bool {
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			return IsTransient(err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		// Anything else from the transport is connection-level.
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500
}

// RunWithRetry executes op under policy. The first attempt runs immediately;
// each retry waits min(MaxDelay, BaseDelay*BackoffFactor^(attempt-1)),
// optionally jittered. A response deemed retryable by the policy is treated
// as a failure; once attempts run out the last failure is returned as a
// RetryExhausted ClientError whose Cause preserves the original error (or,
// for a status-based failure, a typed error carrying the status and body).
// An attempt count of 1 in the returned error means no retry occurred.
func RunWithRetry(ctx context.Context, policy *RetryPolicy, op func(context.Context) (*http.Response, error)) (*http.Response, error) {
	p := policy.normalized()

	var resp *http.Response
	var err error
	for attempt := 1; ; attempt++ {
		resp, err = op(ctx)

		if !p.ShouldRetry(resp, err) {
			return resp, err
		}

		if attempt >= p.MaxAttempts {
			last := err
			statusCode := 0
			if last == nil && resp != nil {
				last = newStatusError(resp)
			}
			var clientErr *ClientError
			if errors.As(last, &clientErr) {
				statusCode = clientErr.StatusCode
			}
			return nil, &ClientError{
				Type:        ErrorTypeRetryExhausted,
				Message:     fmt.Sprintf("request failed after %d attempts", attempt),
				Cause:       last,
				StatusCode:  statusCode,
				Attempt:     attempt,
				MaxAttempts: p.MaxAttempts,
				Timestamp:   time.Now(),
			}
		}

		delay := p.delayFor(attempt, resp)
		drainResponse(resp)

		if p.OnRetry != nil {
			hookErr := err
			if hookErr == nil {
				hookErr = fmt.Errorf("status %d", statusCodeOf(resp))
			}
			p.OnRetry(attempt, hookErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// newStatusError converts a retryable-but-exhausted response into a typed
// error that preserves the status and a bounded body snippet.
func newStatusError(resp *http.Response) *ClientError {
	const maxErrorBody = 4 << 10
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
	}
	errType := ErrorTypeClient
	if resp.StatusCode >= 500 {
		errType = ErrorTypeServer
	}
	return &ClientError{
		Type:       errType,
		Message:    fmt.Sprintf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode: resp.StatusCode,
		Body:       body,
		Timestamp:  time.Now(),
	}
}

// drainResponse discards and closes a response body so the underlying
// connection can be reused before the next attempt.
func drainResponse(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}

func statusCodeOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// parseRetryAfter parses a Retry-After header value, supporting both
// delay-seconds and HTTP-date formats. Values above one hour are capped.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
