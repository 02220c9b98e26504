package rendezvous

import (
	"context"

	"golang.org/x/time/rate"
)

// newRelayLimiter builds the limiter that throttles the
// binary-forwarding phase of a relayed session (§4.5). Burst is twice
// the configured rate, mirroring the teacher's own rate.Limiter usage.
func newRelayLimiter(bytesPerSecond float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(bytesPerSecond), int(2*bytesPerSecond))
}

// waitTokens blocks until n bytes' worth of tokens are available, then
// consumes them (§4.5: forwarding blocks rather than drops). A request
// larger than the burst is waited for in burst-sized steps.
func waitTokens(limiter *rate.Limiter, n int) {
	burst := limiter.Burst()
	if burst <= 0 {
		return
	}
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		_ = limiter.WaitN(context.Background(), step)
		n -= step
	}
}
