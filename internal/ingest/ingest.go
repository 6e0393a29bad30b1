package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gosnaggit/internal/market"
)

// Summary is the per-batch classification report. Every processed item
// lands in exactly one of created/updated/skipped.
type Summary struct {
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Skipped       int `json:"skipped"`
	TotalIncoming int `json:"total_incoming"`
	Processed     int `json:"processed"`

	// CreatedIDs lets the caller create alert events for fresh rows.
	CreatedIDs []uint64 `json:"-"`
}

// Ingestor upserts normalized listings idempotently. Re-ingesting an
// unchanged listing performs no write and counts as skipped.
type Ingestor struct {
	DB  *gorm.DB
	Log *zap.Logger
}

// IngestBatch upserts one adapter's listings for a search. Items missing
// either mandatory field (external_id, listing_url) are dropped and do not
// count toward Processed.
func (g *Ingestor) IngestBatch(ctx context.Context, searchID uint64, marketplace string, items []market.Listing) (Summary, error) {
	sum := Summary{TotalIncoming: len(items)}

	for _, item := range items {
		if !Valid(item) {
			g.Log.Debug("dropping malformed listing",
				zap.Uint64("search_id", searchID),
				zap.String("marketplace", marketplace),
				zap.String("external_id", item.ExternalID))
			continue
		}
		sum.Processed++

		kind, id, err := g.upsertOne(ctx, searchID, marketplace, item)
		if err != nil {
			return sum, err
		}
		switch kind {
		case classCreated:
			sum.Created++
			sum.CreatedIDs = append(sum.CreatedIDs, id)
		case classUpdated:
			sum.Updated++
		default:
			sum.Skipped++
		}
	}
	return sum, nil
}

// Valid reports whether the listing carries both mandatory fields.
func Valid(l market.Listing) bool {
	return strings.TrimSpace(l.ExternalID) != "" && strings.TrimSpace(l.ListingURL) != ""
}

type class int

const (
	classSkipped class = iota
	classCreated
	classUpdated
)

func (g *Ingestor) upsertOne(ctx context.Context, searchID uint64, marketplace string, item market.Listing) (class, uint64, error) {
	var kind class
	var id uint64

	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Result
		err := tx.Where("search_id=? and marketplace=? and external_id=?",
			searchID, marketplace, item.ExternalID).First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := newResult(searchID, marketplace, item)
			if cerr := tx.Create(&row).Error; cerr != nil {
				if errors.Is(cerr, gorm.ErrDuplicatedKey) {
					// lost a create race; classify against the winner
					if rerr := tx.Where("search_id=? and marketplace=? and external_id=?",
						searchID, marketplace, item.ExternalID).First(&existing).Error; rerr != nil {
						return rerr
					}
					return g.updateExisting(tx, &existing, item, &kind, &id)
				}
				return cerr
			}
			kind, id = classCreated, row.ID
			return nil
		}
		if err != nil {
			return err
		}
		return g.updateExisting(tx, &existing, item, &kind, &id)
	})
	return kind, id, err
}

func (g *Ingestor) updateExisting(tx *gorm.DB, existing *Result, item market.Listing, kind *class, id *uint64) error {
	*id = existing.ID
	changes := ChangedFields(existing, item)
	if len(changes) == 0 {
		*kind = classSkipped
		return nil
	}
	changes["updated_at"] = time.Now()
	if err := tx.Model(&Result{}).Where("id=?", existing.ID).Updates(changes).Error; err != nil {
		return err
	}
	*kind = classUpdated
	return nil
}

func newResult(searchID uint64, marketplace string, item market.Listing) Result {
	r := Result{
		SearchID:    searchID,
		Marketplace: marketplace,
		ExternalID:  strings.TrimSpace(item.ExternalID),
		Title:       item.Title,
		PriceRaw:    item.Price,
		PriceCents:  NormalizePriceCents(item.Price),
		Currency:    item.Currency,
		ListingURL:  strings.TrimSpace(item.ListingURL),
		FoundAt:     time.Now(),
	}
	r.ImageURL = optional(item.ImageURL)
	r.Location = optional(item.Location)
	r.Condition = optional(item.Condition)
	r.Seller = optional(item.Seller)
	return r
}

// ChangedFields compares an incoming listing against the stored row and
// returns only the columns that actually differ, so identical re-ingests
// touch nothing. Optional fields are compared only when the incoming value
// is non-empty; adapters that omit a field must not wipe stored data.
func ChangedFields(existing *Result, item market.Listing) map[string]any {
	changes := map[string]any{}

	if item.Title != existing.Title {
		changes["title"] = item.Title
	}
	if item.Price != existing.PriceRaw {
		changes["price_raw"] = item.Price
		changes["price_cents"] = NormalizePriceCents(item.Price)
	}
	if item.Currency != existing.Currency {
		changes["currency"] = item.Currency
	}
	if u := strings.TrimSpace(item.ListingURL); u != existing.ListingURL {
		changes["listing_url"] = u
	}

	compareOptional(changes, "image_url", item.ImageURL, existing.ImageURL)
	compareOptional(changes, "location", item.Location, existing.Location)
	compareOptional(changes, "condition", item.Condition, existing.Condition)
	compareOptional(changes, "seller", item.Seller, existing.Seller)

	return changes
}

func compareOptional(changes map[string]any, column, incoming string, stored *string) {
	if incoming == "" {
		return
	}
	if stored == nil || *stored != incoming {
		changes[column] = incoming
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NormalizePriceCents parses a raw marketplace price string into cents.
// Handles "1234", "1234.56", "1.234,56", currency symbols, and thousands
// separators. Returns nil when no digits are present.
func NormalizePriceCents(raw string) *int64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	// keep digits and the last separator as the decimal point
	lastSep := -1
	for i, r := range s {
		if r == '.' || r == ',' {
			lastSep = i
		}
	}

	var whole, frac strings.Builder
	for i, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		if lastSep >= 0 && i > lastSep {
			frac.WriteRune(r)
		} else {
			whole.WriteRune(r)
		}
	}
	// a separator followed by 3+ digits is a thousands separator, not decimals
	if frac.Len() >= 3 {
		whole.WriteString(frac.String())
		frac.Reset()
	}
	if whole.Len() == 0 && frac.Len() == 0 {
		return nil
	}

	var cents int64
	for _, r := range whole.String() {
		cents = cents*10 + int64(r-'0')
	}
	cents *= 100
	switch f := frac.String(); len(f) {
	case 1:
		cents += int64(f[0]-'0') * 10
	case 2:
		cents += int64(f[0]-'0')*10 + int64(f[1]-'0')
	}
	return &cents
}
