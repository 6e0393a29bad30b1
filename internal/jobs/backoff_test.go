package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelaySchedule(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Minute},
		{2, 5 * time.Minute},
		{3, 15 * time.Minute},
		{4, 60 * time.Minute},
		{5, 60 * time.Minute},
		{20, 60 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryDelayMonotonic(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := RetryDelay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
}
