package handlers

import (
	"testing"
	"time"
)

func TestWindowLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newWindowLimiter(2, time.Minute, func() time.Time { return now })

	if ok, _ := limiter.Allow("cust-1"); !ok {
		t.Fatal("first call should pass")
	}
	if ok, _ := limiter.Allow("cust-1"); !ok {
		t.Fatal("second call should pass")
	}
	ok, wait := limiter.Allow("cust-1")
	if ok {
		t.Fatal("third call should be limited")
	}
	if wait != time.Minute {
		t.Fatalf("expected a full minute wait, got %s", wait)
	}
	if ok, _ := limiter.Allow("cust-2"); !ok {
		t.Fatal("other keys are independent")
	}

	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow("cust-1"); !ok {
		t.Fatal("window should reset")
	}
}

func TestWindowLimiterDisabled(t *testing.T) {
	limiter := newWindowLimiter(0, time.Minute, nil)
	for i := 0; i < 5; i++ {
		if ok, _ := limiter.Allow("cust-1"); !ok {
			t.Fatal("nil limiter admits everything")
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	if got := retryAfterSeconds(1500 * time.Millisecond); got != "2" {
		t.Fatalf("expected 2, got %s", got)
	}
	if got := retryAfterSeconds(0); got != "1" {
		t.Fatalf("expected 1, got %s", got)
	}
}
