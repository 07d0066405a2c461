package worker

import "time"

// RetryDelay returns initial*2^attempt, capped at max.
func RetryDelay(initial, max time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		return 0
	}
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
