// Package market contains pluggable marketplace connectors. Adapters are
// intentionally generic: no site-specific endpoints or parsing rules live
// here, and the mock adapter lets the worker run fully offline.
package market

import (
	"context"

	"go.uber.org/zap"
)

// Query is the normalized search a saved monitor translates to.
type Query struct {
	Text     string
	MaxPrice *int64
	Location string
}

// Listing is a normalized marketplace listing snapshot. Price stays raw
// here; ingestion normalizes it to cents.
type Listing struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Price      string `json:"price"`
	Currency   string `json:"currency"`
	ListingURL string `json:"listing_url"`
	ImageURL   string `json:"image_url,omitempty"`
	Location   string `json:"location,omitempty"`
	Condition  string `json:"condition,omitempty"`
	Seller     string `json:"seller,omitempty"`
}

// Adapter abstracts one external listing source.
type Adapter interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Listing, error)
}

// SourceResult is one adapter's contribution to a refresh.
type SourceResult struct {
	Marketplace string
	Listings    []Listing
	Err         error
}

// Registry fans a query out to every registered adapter. Adapters fail
// independently: one adapter's error never suppresses another's results.
type Registry struct {
	Adapters []Adapter
	Log      *zap.Logger
}

// SearchAll queries the named marketplaces (or all registered ones when the
// filter is empty) and returns one result per adapter, errors included.
func (r *Registry) SearchAll(ctx context.Context, q Query, marketplaces []string) []SourceResult {
	enabled := map[string]bool{}
	for _, m := range marketplaces {
		enabled[m] = true
	}

	var out []SourceResult
	for _, a := range r.Adapters {
		if len(enabled) > 0 && !enabled[a.Name()] {
			continue
		}
		listings, err := a.Search(ctx, q)
		if err != nil {
			r.Log.Warn("marketplace adapter failed",
				zap.String("marketplace", a.Name()), zap.Error(err))
		}
		out = append(out, SourceResult{Marketplace: a.Name(), Listings: listings, Err: err})
	}
	return out
}
