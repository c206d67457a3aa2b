package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "10.0.0.1"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "10.0.0.2"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	limiter := NewLimiter(0.01, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_ = limiter.Wait(ctx, "k") // consumes the burst
	if err := limiter.Wait(ctx, "k"); err == nil {
		t.Error("expected error when the next token is beyond the deadline")
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if err := limiter.Wait(context.Background(), "client-a"); err != nil {
		t.Errorf("first wait failed: %v", err)
	}

	// burst of 1 is consumed
	if limiter.Allow("client-a") {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}

	if !limiter.Allow("client-b") {
		t.Errorf("expected allow for another key")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("k") {
			t.Fatalf("request %d rejected with limiting disabled", i)
		}
	}
}

func TestLimiter_SetKeyRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetKeyRate("openai", 0.1, 1)

	if !limiter.Allow("openai") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("openai") {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("ollama") {
		t.Errorf("other key should pass")
	}
}

func TestLimiter_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewLimiter(10, 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("old")
	limiter.SetKeyRate("pinned", 1, 1)
	now = now.Add(time.Hour)
	limiter.Allow("fresh")

	if dropped := limiter.Sweep(30 * time.Minute); dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
	if limiter.Len() != 2 {
		t.Errorf("expected pinned and fresh to remain, got %d keys", limiter.Len())
	}
}
