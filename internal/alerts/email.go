package alerts

import (
	"fmt"
	"strings"
)

// BuildEmail renders exactly one email for a claimed batch, never one per
// listing.
func BuildEmail(searchName string, items []EmailItem) (subject, body string) {
	noun := "matches"
	if len(items) == 1 {
		noun = "match"
	}
	subject = fmt.Sprintf("%d new %s for %q", len(items), noun, searchName)

	var b strings.Builder
	fmt.Fprintf(&b, "Your saved search %q has %d new %s:\n\n", searchName, len(items), noun)
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s", i+1, titleOrFallback(it))
		if it.PriceRaw != "" {
			fmt.Fprintf(&b, " — %s", it.PriceRaw)
			if it.Currency != "" {
				fmt.Fprintf(&b, " %s", it.Currency)
			}
		}
		if it.Location != nil && *it.Location != "" {
			fmt.Fprintf(&b, " (%s)", *it.Location)
		}
		fmt.Fprintf(&b, "\n   %s [%s]\n", it.ListingURL, it.Marketplace)
	}
	b.WriteString("\nManage this search or pause alerts from your dashboard.\n")
	return subject, b.String()
}

func titleOrFallback(it EmailItem) string {
	if strings.TrimSpace(it.Title) != "" {
		return it.Title
	}
	return "Untitled listing"
}
