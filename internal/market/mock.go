package market

import (
	"context"
	"fmt"
	"hash/fnv"
)

// MockAdapter synthesizes deterministic listings from the query text so the
// whole pipeline can run offline. The same query always yields the same
// external IDs, which exercises the idempotent ingestion path.
type MockAdapter struct {
	Source string // marketplace name, e.g. "mock"
	Count  int    // listings per search, default 3
}

func (m *MockAdapter) Name() string {
	if m.Source == "" {
		return "mock"
	}
	return m.Source
}

func (m *MockAdapter) Search(ctx context.Context, q Query) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := m.Count
	if n <= 0 {
		n = 3
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(q.Text))
	seed := h.Sum32()

	out := make([]Listing, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%08x-%d", m.Name(), seed, i)
		out = append(out, Listing{
			ExternalID: id,
			Title:      fmt.Sprintf("%s (offer %d)", q.Text, i+1),
			Price:      fmt.Sprintf("%d.00", 10+(int(seed)%90)+i*5),
			Currency:   "EUR",
			ListingURL: fmt.Sprintf("https://%s.example/listings/%s", m.Name(), id),
			Location:   q.Location,
			Condition:  "used",
		})
	}
	return out, nil
}
