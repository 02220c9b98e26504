package rendezvous

import (
	"testing"
	"time"
)

func TestRelayLimiterStartsFull(t *testing.T) {
	l := newRelayLimiter(1000)
	start := time.Now()
	waitTokens(l, 2000) // within the 2x burst, should not block meaningfully
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("waitTokens blocked for %v on a full bucket within burst", elapsed)
	}
}

func TestRelayLimiterThrottlesOverBurst(t *testing.T) {
	l := newRelayLimiter(1000) // burst 2000
	waitTokens(l, 2000)        // drain the burst

	start := time.Now()
	waitTokens(l, 500) // needs to wait for refill at 1000 bytes/sec
	elapsed := time.Since(start)
	if elapsed < 400*time.Millisecond {
		t.Fatalf("expected to wait roughly 500ms for refill, waited %v", elapsed)
	}
}
