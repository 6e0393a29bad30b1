package jobs

import "time"

const (
	TypeRefresh  = "refresh"
	TypeDispatch = "dispatch"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Job is one unit of queued work. A refresh job carries the search it
// refreshes; the single circulating dispatch job carries no search.
type Job struct {
	ID       uint64  `gorm:"primaryKey"`
	JobType  string  `gorm:"type:text;not null;index"`
	SearchID *uint64 `gorm:"index"`

	Status string    `gorm:"type:text;index;not null;default:'queued'"`
	RunAt  time.Time `gorm:"index;not null"`

	AttemptCount int     `gorm:"not null;default:0"`
	LastError    *string `gorm:"type:text"`

	ClaimedBy      *string    `gorm:"type:text"`
	ClaimedAt      *time.Time `gorm:"type:timestamptz"`
	LeaseExpiresAt *time.Time `gorm:"type:timestamptz;index"`

	StartedAt  *time.Time `gorm:"type:timestamptz"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}
