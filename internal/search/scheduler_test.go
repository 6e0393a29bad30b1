package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshInterval(t *testing.T) {
	assert.Equal(t, 1440*time.Minute, RefreshInterval(TierFree))
	assert.Equal(t, 60*time.Minute, RefreshInterval(TierPro))
	assert.Equal(t, 15*time.Minute, RefreshInterval(TierPower))

	// unknown tiers fall back to the free cadence
	assert.Equal(t, 1440*time.Minute, RefreshInterval("enterprise"))
}

func TestDispatchIntervalConstant(t *testing.T) {
	for _, tier := range []string{TierFree, TierPro, TierPower} {
		assert.Equal(t, 5*time.Minute, DispatchInterval(tier))
	}
}

func TestNextTimes(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	refresh, dispatch := NextTimes(TierPower, now)
	assert.Equal(t, now.Add(15*time.Minute), refresh)
	assert.Equal(t, now.Add(5*time.Minute), dispatch)

	refresh, dispatch = NextTimes(TierFree, now)
	assert.Equal(t, now.Add(24*time.Hour), refresh)
	assert.Equal(t, now.Add(5*time.Minute), dispatch)
}

func TestValidTier(t *testing.T) {
	assert.True(t, ValidTier(TierFree))
	assert.True(t, ValidTier(TierPro))
	assert.True(t, ValidTier(TierPower))
	assert.False(t, ValidTier(""))
	assert.False(t, ValidTier("premium"))
}
