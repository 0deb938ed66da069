package models

import "gorm.io/gorm"

// User represents a tenant account. Every domain row is keyed by
// user_id; nothing is shared across accounts.
type User struct {
	gorm.Model

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	// Profile information
	Name     *string `json:"name,omitempty"`
	Company  *string `json:"company,omitempty"`
	Timezone string  `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`

	// Daily send cap, enforced by the dispatcher. SentToday resets at
	// midnight.
	DailySendLimit int `gorm:"default:1000" json:"daily_send_limit"`
	SentToday      int `gorm:"default:0" json:"sent_today"`

	// Relations
	Broadcasts []Broadcast          `gorm:"foreignKey:UserID" json:"broadcasts,omitempty"`
	Sequences  []AutomationSequence `gorm:"foreignKey:UserID" json:"sequences,omitempty"`
	Contacts   []Contact            `gorm:"foreignKey:UserID" json:"contacts,omitempty"`
	Audiences  []Audience           `gorm:"foreignKey:UserID" json:"audiences,omitempty"`
}
