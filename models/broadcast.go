package models

import (
	"time"

	"gorm.io/gorm"
)

// Broadcast statuses. A broadcast is never picked up while in draft;
// failed is terminal and is not retried automatically.
const (
	BroadcastStatusDraft     = "draft"
	BroadcastStatusScheduled = "scheduled"
	BroadcastStatusTesting   = "testing"
	BroadcastStatusSending   = "sending"
	BroadcastStatusSent      = "sent"
	BroadcastStatusFailed    = "failed"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

const (
	BroadcastTypeStandard      = "standard"
	BroadcastTypeReviewRequest = "review_request"
)

const (
	VariantA = "A"
	VariantB = "B"
)

// Broadcast represents a one-time audience-targeted send job (email or
// SMS), optionally A/B tested.
type Broadcast struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name    string `gorm:"not null" json:"name"`
	Channel string `gorm:"not null;default:'email'" json:"channel"` // email, sms
	Type    string `gorm:"default:'standard'" json:"type"`          // standard, review_request

	// AudienceSpec is either an Audience row id (standard broadcasts)
	// or a "tags:<csv>|platform:<name>" string (review requests).
	AudienceSpec string `gorm:"not null" json:"audience_spec"`

	// Scheduling
	Status      string     `gorm:"default:'draft';index" json:"status"` // draft, scheduled, testing, sending, sent, failed
	ScheduledAt *time.Time `json:"scheduled_at"`
	// NextActionAt is what the scans poll on: the send time while
	// scheduled, the winner-check time while testing.
	NextActionAt *time.Time `gorm:"index" json:"next_action_at"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`

	// AbTest is only honored when two content versions are present.
	AbTest *AbTestConfig `gorm:"type:jsonb;serializer:json" json:"ab_test,omitempty"`

	// Statistics (denormalized for performance)
	TotalRecipients int `gorm:"default:0" json:"total_recipients"`
	SentCount       int `gorm:"default:0" json:"sent_count"`
	FailedCount     int `gorm:"default:0" json:"failed_count"`
	OpenCount       int `gorm:"default:0" json:"open_count"`
	ClickCount      int `gorm:"default:0" json:"click_count"`

	LastError string `json:"last_error,omitempty"`

	// Relations
	Versions []ContentVersion `gorm:"foreignKey:BroadcastID" json:"versions,omitempty"`
}

// VersionFor returns the content version for a variant, or nil.
func (b *Broadcast) VersionFor(variant string) *ContentVersion {
	for i := range b.Versions {
		if b.Versions[i].Variant == variant {
			return &b.Versions[i]
		}
	}
	return nil
}

// PrimaryVersion returns the variant-A content, falling back to the
// first version for single-content broadcasts.
func (b *Broadcast) PrimaryVersion() *ContentVersion {
	if v := b.VersionFor(VariantA); v != nil {
		return v
	}
	if len(b.Versions) > 0 {
		return &b.Versions[0]
	}
	return nil
}

// ContentVersion is one of up to two alternative message contents.
// Subject is ignored for SMS broadcasts. The per-variant counters are
// what the default winner scorer reads.
type ContentVersion struct {
	gorm.Model
	BroadcastID uint   `gorm:"not null;index" json:"broadcast_id"`
	Variant     string `gorm:"not null" json:"variant"` // A, B
	Subject     string `json:"subject"`
	Body        string `gorm:"type:text" json:"body"`

	SentCount int `gorm:"default:0" json:"sent_count"`
	OpenCount int `gorm:"default:0" json:"open_count"`
}

// AbTestConfig configures the test split. VariantASize and VariantBSize
// are percentages of the test slice and should sum to 100.
type AbTestConfig struct {
	TestSizePercentage int    `json:"test_size_percentage"`
	VariantASize       int    `json:"variant_a_size"`
	VariantBSize       int    `json:"variant_b_size"`
	TestDurationHours  int    `json:"test_duration_hours,omitempty"` // default 24
	WinnerVariant      string `json:"winner_variant,omitempty"`      // absent until decided
}
