package alerts

import "time"

// RetryDelay computes the capped exponential delay before the next send
// attempt: min(max, base * 2^attempt).
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	if max <= 0 {
		max = time.Hour
	}
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
