package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestFixedWindowBoundary(t *testing.T) {
	l := NewLimiter()

	want := []bool{false, false, false, true, true}
	for i, expected := range want {
		if got := l.IsRateLimited("ip-1", 3, time.Minute); got != expected {
			t.Fatalf("request %d: limited=%v, want %v", i+1, got, expected)
		}
	}
}

func TestWindowReset(t *testing.T) {
	l := NewLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if l.IsRateLimited("ip-1", 3, time.Minute) {
			t.Fatalf("request %d limited below threshold", i+1)
		}
	}
	if !l.IsRateLimited("ip-1", 3, time.Minute) {
		t.Fatal("fourth request must be limited")
	}

	now = now.Add(time.Minute + time.Second)
	if l.IsRateLimited("ip-1", 3, time.Minute) {
		t.Fatal("window did not reset")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 3; i++ {
		l.IsRateLimited("ip-1", 3, time.Minute)
	}
	if l.IsRateLimited("ip-2", 3, time.Minute) {
		t.Fatal("unrelated key was limited")
	}
}

func TestCheckReportsRetryAfter(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 2; i++ {
		l.IsRateLimited("ip-1", 1, time.Minute)
	}
	limited, retryAfter := l.Check("ip-1", 1, time.Minute)
	if !limited {
		t.Fatal("expected limited")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unreasonable retry-after: %v", retryAfter)
	}
}

func TestZeroConfigNeverLimits(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 100; i++ {
		if l.IsRateLimited("ip-1", 0, time.Minute) || l.IsRateLimited("ip-1", 5, 0) {
			t.Fatal("degenerate config must not limit")
		}
	}
}

func TestRespond429(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond429(rec, 1500*time.Millisecond)
	if rec.Code != 429 {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q", got)
	}
}

func TestCheckRetryAfterUsesLimiterClock(t *testing.T) {
	l := NewLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }

	if limited, _ := l.Check("ip-1", 1, time.Minute); limited {
		t.Fatal("first request limited")
	}
	limited, retryAfter := l.Check("ip-1", 1, time.Minute)
	if !limited {
		t.Fatal("second request must be limited")
	}
	if retryAfter != time.Minute {
		t.Fatalf("retry-after = %v, want %v", retryAfter, time.Minute)
	}

	now = now.Add(40 * time.Second)
	limited, retryAfter = l.Check("ip-1", 1, time.Minute)
	if !limited {
		t.Fatal("still inside the window, must be limited")
	}
	if retryAfter != 20*time.Second {
		t.Fatalf("retry-after = %v after 40s, want 20s", retryAfter)
	}
}
