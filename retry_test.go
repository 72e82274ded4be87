package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func fakeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		ShouldRetry:   DefaultRetryCondition,
	}
}

func TestRunWithRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	resp, err := RunWithRetry(context.Background(), fastPolicy(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return fakeResponse(http.StatusOK, "ok"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRunWithRetryRecoversAfterFailures(t *testing.T) {
	calls := 0
	resp, err := RunWithRetry(context.Background(), fastPolicy(), func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls < 3 {
			return fakeResponse(http.StatusInternalServerError, "boom"), nil
		}
		return fakeResponse(http.StatusOK, "recovered"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRunWithRetryExhaustionPreservesLastFailure(t *testing.T) {
	calls := 0
	_, err := RunWithRetry(context.Background(), fastPolicy(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return fakeResponse(http.StatusServiceUnavailable, "still down"), nil
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *ClientError, got %T", err)
	}
	if clientErr.Type != ErrorTypeRetryExhausted {
		t.Errorf("expected type %q, got %q", ErrorTypeRetryExhausted, clientErr.Type)
	}
	if clientErr.Attempt != 3 || clientErr.MaxAttempts != 3 {
		t.Errorf("expected attempt 3/3, got %d/%d", clientErr.Attempt, clientErr.MaxAttempts)
	}
	if clientErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 on exhaustion error, got %d", clientErr.StatusCode)
	}

	var cause *ClientError
	if !errors.As(clientErr.Cause, &cause) {
		t.Fatalf("expected typed cause, got %T", clientErr.Cause)
	}
	if cause.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("cause status = %d, want 503", cause.StatusCode)
	}
	if !strings.Contains(string(cause.Body), "still down") {
		t.Errorf("cause body %q missing server message", cause.Body)
	}
}

func TestRunWithRetryDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	resp, err := RunWithRetry(context.Background(), fastPolicy(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return fakeResponse(http.StatusNotFound, "missing"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if calls != 1 {
		t.Errorf("404 must not be retried, got %d attempts", calls)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 passed through, got %d", resp.StatusCode)
	}
}

func TestRunWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := fastPolicy()
	policy.BaseDelay = time.Hour
	policy.MaxDelay = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := RunWithRetry(ctx, policy, func(ctx context.Context) (*http.Response, error) {
			calls++
			return nil, errors.New("connection refused")
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt before the backoff wait, got %d", calls)
	}
}

func TestRunWithRetryOnRetryHook(t *testing.T) {
	var attempts []int
	var hookErrs []error
	policy := fastPolicy()
	policy.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
		hookErrs = append(hookErrs, err)
	}

	transportErr := errors.New("connection reset")
	calls := 0
	resp, err := RunWithRetry(context.Background(), policy, func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls == 1 {
			return nil, transportErr
		}
		if calls == 2 {
			return fakeResponse(http.StatusBadGateway, ""), nil
		}
		return fakeResponse(http.StatusOK, "ok"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("expected hook on attempts [1 2], got %v", attempts)
	}
	if !errors.Is(hookErrs[0], transportErr) {
		t.Errorf("first hook error = %v, want the transport error", hookErrs[0])
	}
	if hookErrs[1] == nil || !strings.Contains(hookErrs[1].Error(), "502") {
		t.Errorf("second hook error = %v, want a status 502 failure", hookErrs[1])
	}
}

func TestRunWithRetryCustomCondition(t *testing.T) {
	policy := fastPolicy()
	policy.ShouldRetry = func(resp *http.Response, err error) bool {
		return resp != nil && resp.StatusCode == http.StatusConflict
	}

	calls := 0
	_, err := RunWithRetry(context.Background(), policy, func(ctx context.Context) (*http.Response, error) {
		calls++
		return fakeResponse(http.StatusConflict, ""), nil
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts under the custom condition, got %d", calls)
	}
}

func TestRunWithRetryRetryAfterPrecedence(t *testing.T) {
	policy := fastPolicy()
	policy.MaxAttempts = 2
	policy.BaseDelay = time.Nanosecond

	start := time.Now()
	calls := 0
	resp, err := RunWithRetry(context.Background(), policy, func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls == 1 {
			r := fakeResponse(http.StatusTooManyRequests, "")
			r.Header.Set("Retry-After", "1")
			return r, nil
		}
		return fakeResponse(http.StatusOK, "ok"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("expected Retry-After to dominate the backoff, waited only %v", elapsed)
	}
}

func TestDefaultRetryCondition(t *testing.T) {
	cases := []struct {
		name string
		resp *http.Response
		err  error
		want bool
	}{
		{"transport error", nil, errors.New("connection refused"), true},
		{"context canceled", nil, context.Canceled, false},
		{"deadline exceeded", nil, fmt.Errorf("request: %w", context.DeadlineExceeded), false},
		{"timeout client error", nil, &ClientError{Type: ErrorTypeTimeout}, true},
		{"auth client error", nil, &ClientError{Type: ErrorTypeAuth}, false},
		{"validation client error", nil, &ClientError{Type: ErrorTypeValidation}, false},
		{"nil response nil error", nil, nil, false},
		{"500", &http.Response{StatusCode: 500}, nil, true},
		{"503", &http.Response{StatusCode: 503}, nil, true},
		{"429", &http.Response{StatusCode: 429}, nil, true},
		{"408", &http.Response{StatusCode: 408}, nil, true},
		{"200", &http.Response{StatusCode: 200}, nil, false},
		{"404", &http.Response{StatusCode: 404}, nil, false},
		{"401", &http.Response{StatusCode: 401}, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultRetryCondition(tc.resp, tc.err); got != tc.want {
				t.Errorf("DefaultRetryCondition(%v, %v) = %v, want %v", tc.resp, tc.err, got, tc.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"garbage", 0},
		{"7200", time.Hour},
	}
	for _, tc := range cases {
		if got := parseRetryAfter(tc.value); got != tc.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 25*time.Second || got > 30*time.Second {
		t.Errorf("parseRetryAfter(http-date) = %v, want roughly 30s", got)
	}
	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("parseRetryAfter(past date) = %v, want 0", got)
	}
}
