package lifecycle

import (
	"testing"
	"time"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	p := DefaultBackoffPolicy()
	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		30 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
	// Attempts past the table cap at the last delay.
	if got := p.Delay(9); got != 60*time.Second {
		t.Errorf("Delay(9) = %v, want 60s", got)
	}
}

func TestBackoffPolicy_Exhausted(t *testing.T) {
	p := DefaultBackoffPolicy()
	if p.Exhausted(p.MaxAttempts()) {
		t.Errorf("attempt %d should still be allowed", p.MaxAttempts())
	}
	if !p.Exhausted(p.MaxAttempts() + 1) {
		t.Errorf("attempt %d should be exhausted", p.MaxAttempts()+1)
	}
}

func TestNewBackoffPolicy_Fallbacks(t *testing.T) {
	p := NewBackoffPolicy(nil, 0)
	if p.MaxAttempts() != DefaultMaxReconnectAttempts {
		t.Errorf("MaxAttempts = %d, want %d", p.MaxAttempts(), DefaultMaxReconnectAttempts)
	}
	if got := p.Delay(1); got != 5*time.Second {
		t.Errorf("Delay(1) = %v, want 5s", got)
	}

	p = NewBackoffPolicy([]time.Duration{time.Millisecond}, 2)
	if p.MaxAttempts() != 2 {
		t.Errorf("MaxAttempts = %d, want 2", p.MaxAttempts())
	}
	if got := p.Delay(5); got != time.Millisecond {
		t.Errorf("Delay(5) = %v, want 1ms", got)
	}
}
