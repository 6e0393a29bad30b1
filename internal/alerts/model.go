package alerts

import "time"

const (
	StatusPending   = "pending"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDismissed = "dismissed"
	StatusError     = "error"
)

const (
	ModeImmediate = "immediate"
	ModeDaily     = "daily"
)

// AlertEvent is one pending or completed user notification for a matched
// listing. DedupeKey is unique so duplicate creation attempts are no-ops.
type AlertEvent struct {
	ID       uint64  `gorm:"primaryKey"`
	SearchID uint64  `gorm:"index;not null"`
	ResultID *uint64 `gorm:"index"`

	Status    string `gorm:"type:text;index;not null;default:'pending'"`
	DedupeKey string `gorm:"type:text;uniqueIndex;not null"`

	AttemptCount  int        `gorm:"not null;default:0"`
	ErrorMessage  *string    `gorm:"type:text"`
	LastAttemptAt *time.Time `gorm:"type:timestamptz"`
	NextAttemptAt *time.Time `gorm:"type:timestamptz"`
	SentAt        *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"index;not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// NotificationSetting is a delivery destination for a search. Only one
// enabled email destination per search is consulted.
type NotificationSetting struct {
	ID       uint64 `gorm:"primaryKey"`
	SearchID uint64 `gorm:"index;not null"`

	Channel     string `gorm:"type:text;not null;default:'email'"`
	Destination string `gorm:"type:text;not null"`
	IsEnabled   bool   `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// AlertSetting gates dispatch per search.
type AlertSetting struct {
	SearchID uint64 `gorm:"primaryKey"`

	Enabled     bool   `gorm:"not null;default:true"`
	Mode        string `gorm:"type:text;not null;default:'immediate'"`
	MaxPerEmail int    `gorm:"not null;default:20"`

	LastDigestSentAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// Defaults used when a search has no alert_settings row yet.
func DefaultSettings(searchID uint64) AlertSetting {
	return AlertSetting{SearchID: searchID, Enabled: true, Mode: ModeImmediate, MaxPerEmail: 20}
}
