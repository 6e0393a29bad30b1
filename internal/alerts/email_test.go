package alerts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEmailSingleMessageForBatch(t *testing.T) {
	loc := "Hamburg"
	items := []EmailItem{
		{EventID: 1, Title: "Leica M6", PriceRaw: "1.899,00", Currency: "EUR", ListingURL: "https://m/1", Marketplace: "ebay"},
		{EventID: 2, Title: "Leica M4", PriceRaw: "1.200,00", Currency: "EUR", ListingURL: "https://m/2", Marketplace: "kleinanzeigen", Location: &loc},
	}

	subject, body := BuildEmail("Leica rangefinders", items)

	assert.Equal(t, `2 new matches for "Leica rangefinders"`, subject)
	assert.Contains(t, body, "Leica M6")
	assert.Contains(t, body, "Leica M4")
	assert.Contains(t, body, "https://m/1")
	assert.Contains(t, body, "https://m/2")
	assert.Contains(t, body, "(Hamburg)")

	// both listings share one email body
	assert.Equal(t, 1, strings.Count(body, "has 2 new matches"))
}

func TestBuildEmailSingularAndFallbacks(t *testing.T) {
	subject, body := BuildEmail("bikes", []EmailItem{{EventID: 9, ListingURL: "https://m/9", Marketplace: "mock"}})

	assert.Equal(t, `1 new match for "bikes"`, subject)
	assert.Contains(t, body, "Untitled listing")
	assert.Contains(t, body, "[mock]")
}
