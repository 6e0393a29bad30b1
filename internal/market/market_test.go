package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAdapter struct {
	name     string
	listings []Listing
	err      error
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Search(ctx context.Context, q Query) ([]Listing, error) {
	return s.listings, s.err
}

func TestMockAdapterDeterministic(t *testing.T) {
	m := &MockAdapter{Source: "mock", Count: 3}

	a, err := m.Search(context.Background(), Query{Text: "vintage camera"})
	require.NoError(t, err)
	b, err := m.Search(context.Background(), Query{Text: "vintage camera"})
	require.NoError(t, err)

	require.Len(t, a, 3)
	assert.Equal(t, a, b)
	for _, l := range a {
		assert.NotEmpty(t, l.ExternalID)
		assert.NotEmpty(t, l.ListingURL)
	}
}

func TestRegistryIsolatesAdapterFailures(t *testing.T) {
	reg := &Registry{
		Adapters: []Adapter{
			&stubAdapter{name: "alpha", listings: []Listing{{ExternalID: "a1", ListingURL: "https://a/1"}}},
			&stubAdapter{name: "broken", err: errors.New("timeout")},
			&stubAdapter{name: "beta", listings: []Listing{{ExternalID: "b1", ListingURL: "https://b/1"}}},
		},
		Log: zap.NewNop(),
	}

	results := reg.SearchAll(context.Background(), Query{Text: "x"}, nil)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Listings, 1)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Len(t, results[2].Listings, 1)
}

func TestRegistryMarketplaceFilter(t *testing.T) {
	reg := &Registry{
		Adapters: []Adapter{
			&stubAdapter{name: "alpha"},
			&stubAdapter{name: "beta"},
		},
		Log: zap.NewNop(),
	}

	results := reg.SearchAll(context.Background(), Query{}, []string{"beta"})
	require.Len(t, results, 1)
	assert.Equal(t, "beta", results[0].Marketplace)
}

func TestParseSearchPayload(t *testing.T) {
	wrapped := []byte(`{"listings":[{"external_id":" x1 ","title":"Thing","listing_url":"https://m/1"}]}`)
	got, err := ParseSearchPayload(wrapped)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x1", got[0].ExternalID)

	bare := []byte(`[{"external_id":"y1","listing_url":"https://m/2"}]`)
	got, err = ParseSearchPayload(bare)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "y1", got[0].ExternalID)

	_, err = ParseSearchPayload([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseSearchPayloadEmptyResults(t *testing.T) {
	for _, raw := range []string{`{"listings":[]}`, `{}`, `[]`} {
		got, err := ParseSearchPayload([]byte(raw))
		require.NoError(t, err, raw)
		assert.Empty(t, got, raw)
	}
}
