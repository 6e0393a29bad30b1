package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayDoubles(t *testing.T) {
	base := 60 * time.Second
	max := 3600 * time.Second

	assert.Equal(t, 60*time.Second, RetryDelay(0, base, max))
	assert.Equal(t, 120*time.Second, RetryDelay(1, base, max))
	assert.Equal(t, 240*time.Second, RetryDelay(2, base, max))
	assert.Equal(t, 1920*time.Second, RetryDelay(5, base, max))
}

func TestRetryDelayCapped(t *testing.T) {
	base := 60 * time.Second
	max := 3600 * time.Second

	assert.Equal(t, max, RetryDelay(6, base, max))
	assert.Equal(t, max, RetryDelay(7, base, max))
	assert.Equal(t, max, RetryDelay(60, base, max))
}

func TestRetryDelayMonotonic(t *testing.T) {
	base := 30 * time.Second
	max := 10 * time.Minute

	prev := time.Duration(0)
	for n := 0; n < 20; n++ {
		d := RetryDelay(n, base, max)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
		assert.LessOrEqual(t, d, max, "attempt %d", n)
		prev = d
	}
}

func TestRetryDelayDefaults(t *testing.T) {
	// zero config falls back to sane bounds instead of a zero delay
	assert.Equal(t, time.Minute, RetryDelay(0, 0, 0))
	assert.Equal(t, time.Hour, RetryDelay(30, 0, 0))
}
