package search

import (
	"time"

	"github.com/lib/pq"
)

const (
	TierFree  = "free"
	TierPro   = "pro"
	TierPower = "power"
)

const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusDeleted   = "deleted"
)

// Search is a user's saved marketplace monitor.
type Search struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	Name     string `gorm:"type:text;not null"`
	Query    string `gorm:"type:text;not null"`
	MaxPrice *int64
	Location *string `gorm:"type:text"`

	// marketplaces enabled for this search; empty means all registered
	Marketplaces pq.StringArray `gorm:"type:text[];not null;default:'{}'"`

	PlanTier string `gorm:"type:text;index;not null;default:'free'"`
	Status   string `gorm:"type:text;index;not null;default:'active'"`

	NextRefreshAt  *time.Time `gorm:"type:timestamptz;index"`
	NextDispatchAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}
