package jobs

import "time"

// RetryDelay is the fixed requeue schedule for failed jobs. It flattens at
// one hour from the fourth attempt onward.
func RetryDelay(attempt int) time.Duration {
	switch {
	case attempt <= 1:
		return 2 * time.Minute
	case attempt == 2:
		return 5 * time.Minute
	case attempt == 3:
		return 15 * time.Minute
	default:
		return 60 * time.Minute
	}
}
