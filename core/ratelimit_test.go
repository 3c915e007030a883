package core

import (
	"testing"
	"time"
)

func TestRateLimiterAdmitsBurstThenRejects(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Limit: 10, Window: time.Minute, Burst: 10})

	for i := 0; i < 10; i++ {
		if ok, _ := rl.Allow("alice"); !ok {
			t.Fatalf("request %d within burst should be admitted", i)
		}
	}
	ok, retryAfter := rl.Allow("alice")
	if ok {
		t.Fatal("11th request within the window must be rejected")
	}
	if retryAfter != time.Minute {
		t.Fatalf("expected retry-after of one window, got %s", retryAfter)
	}
}

func TestRateLimiterCallersIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Limit: 1, Window: time.Minute, Burst: 1})

	if ok, _ := rl.Allow("alice"); !ok {
		t.Fatal("alice's first request should pass")
	}
	if ok, _ := rl.Allow("alice"); ok {
		t.Fatal("alice's second request should be rejected")
	}
	if ok, _ := rl.Allow("bob"); !ok {
		t.Fatal("bob must be unaffected by alice's bucket")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Limit: 100, Window: time.Second, Burst: 1})
	if ok, _ := rl.Allow("alice"); !ok {
		t.Fatal("first request should pass")
	}
	if ok, _ := rl.Allow("alice"); ok {
		t.Fatal("burst of 1 should reject an immediate second request")
	}
	time.Sleep(15 * time.Millisecond) // 100/s refills one token in 10ms
	if ok, _ := rl.Allow("alice"); !ok {
		t.Fatal("bucket should have refilled")
	}
}
