package ingest

import "time"

// Result is a stored marketplace listing snapshot for one search. The
// triple (search_id, marketplace, external_id) is unique.
type Result struct {
	ID       uint64 `gorm:"primaryKey"`
	SearchID uint64 `gorm:"index;not null"`

	Marketplace string `gorm:"type:text;not null"`
	ExternalID  string `gorm:"type:text;not null"`

	Title      string  `gorm:"type:text;not null;default:''"`
	PriceRaw   string  `gorm:"type:text;not null;default:''"`
	PriceCents *int64  // normalized numeric price
	Currency   string  `gorm:"type:text;not null;default:''"`
	ListingURL string  `gorm:"type:text;not null"`
	ImageURL   *string `gorm:"type:text"`
	Location   *string `gorm:"type:text"`
	Condition  *string `gorm:"type:text"`
	Seller     *string `gorm:"type:text"`

	FoundAt   time.Time `gorm:"type:timestamptz;index;not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}
