package models

import "gorm.io/gorm"

// Contact represents a single person a user can reach over email or SMS.
type Contact struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Email     string `gorm:"index" json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`

	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`

	// Relations
	Tags []ContactTag `gorm:"foreignKey:ContactID" json:"tags,omitempty"`
}

// AddressFor returns the contact's address for a channel, or "" when
// the contact cannot be reached over it.
func (c *Contact) AddressFor(channel string) string {
	switch channel {
	case ChannelEmail:
		return c.Email
	case ChannelSMS:
		return c.Phone
	}
	return ""
}

// ContactTag represents tags for contacts (normalized).
type ContactTag struct {
	gorm.Model
	ContactID uint   `gorm:"not null;index" json:"contact_id"`
	Tag       string `gorm:"not null;index" json:"tag"`
}

// Audience is a named, taggable group of contacts resolved at send
// time. An empty FilterTags list means "all contacts eligible for the
// broadcast's channel".
type Audience struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name       string   `gorm:"not null" json:"name"`
	FilterTags []string `gorm:"type:jsonb;serializer:json" json:"filter_tags"`
}
