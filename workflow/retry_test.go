package workflow

import (
	"testing"
	"time"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseBackoff: 50 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 50 * time.Millisecond},
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{3, 200 * time.Millisecond},
		{4, 300 * time.Millisecond},
		{40, 300 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := p.Backoff(tc.attempt); got != tc.want {
			t.Fatalf("Backoff(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}

	if got := (RetryPolicy{MaxAttempts: 3}).Backoff(2); got != 0 {
		t.Fatalf("zero base backoff should not wait, got %s", got)
	}
}

func TestPublishBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{7, 320 * time.Second},
		{8, 10 * time.Minute},
		{20, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := publishBackoff(5*time.Second, 10*time.Minute, tc.attempt); got != tc.want {
			t.Fatalf("publishBackoff(attempt=%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}
