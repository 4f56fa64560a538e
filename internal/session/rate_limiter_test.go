package session

import (
	"testing"
	"time"
)

func TestSendLimiter_Window(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewSendLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("alice") || !rl.Allow("alice") {
		t.Fatal("first two attempts rejected")
	}
	if rl.Allow("alice") {
		t.Error("third attempt inside window allowed")
	}
	if !rl.Allow("bob") {
		t.Error("other user throttled")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("alice") {
		t.Error("attempt after window rejected")
	}
}

func TestSendLimiter_Disabled(t *testing.T) {
	rl := NewSendLimiter(0, time.Minute)
	if rl != nil {
		t.Fatal("NewSendLimiter(0) returned a limiter")
	}
	for i := 0; i < 100; i++ {
		if !rl.Allow("alice") {
			t.Fatal("nil limiter rejected")
		}
	}
	rl.Forget("alice")
}
