package network

import (
	"testing"
	"time"
)

func TestRateLimiterConsumesTokens(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("request %d within budget must be allowed", i)
		}
	}
	if rl.Allow() {
		t.Error("empty bucket must deny")
	}
	if got := rl.Tokens(); got != 0 {
		t.Errorf("Tokens() = %d, want 0", got)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	if !rl.Allow() {
		t.Fatal("first request must be allowed")
	}
	if rl.Allow() {
		t.Fatal("bucket must be empty")
	}

	time.Sleep(25 * time.Millisecond)
	if !rl.Allow() {
		t.Error("bucket must refill after the refill interval")
	}
}

func TestRateLimiterRefillCapsAtMax(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	rl.Allow()
	rl.Allow()

	// Many refill intervals elapse, but the bucket never exceeds maxTokens.
	time.Sleep(150 * time.Millisecond)
	for i := 0; i < 2; i++ {
		if !rl.Allow() {
			t.Fatalf("request %d after refill must be allowed", i)
		}
	}
	if rl.Allow() {
		t.Error("refill must cap at maxTokens")
	}
}
