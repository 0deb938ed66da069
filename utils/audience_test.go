package utils

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reachly/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.ContactTag{},
		&models.Audience{},
		&models.Broadcast{},
		&models.ContentVersion{},
	))
	return db
}

func createContact(t *testing.T, db *gorm.DB, userID uint, email, phone string, unsubscribed bool, tags ...string) models.Contact {
	t.Helper()

	contact := models.Contact{
		UserID:         userID,
		Email:          email,
		Phone:          phone,
		IsUnsubscribed: unsubscribed,
	}
	for _, tag := range tags {
		contact.Tags = append(contact.Tags, models.ContactTag{Tag: tag})
	}
	require.NoError(t, db.Create(&contact).Error)
	return contact
}

func TestParseAudienceSpecStandard(t *testing.T) {
	spec, err := ParseAudienceSpec("42", models.BroadcastTypeStandard)
	require.NoError(t, err)
	assert.Equal(t, AudienceKindTagged, spec.Kind)
	assert.Equal(t, uint(42), spec.AudienceID)
	assert.Equal(t, "42", spec.Encode())
}

func TestParseAudienceSpecReviewRequest(t *testing.T) {
	spec, err := ParseAudienceSpec("tags:vip,new|platform:google", models.BroadcastTypeReviewRequest)
	require.NoError(t, err)
	assert.Equal(t, AudienceKindReviewRequest, spec.Kind)
	assert.Equal(t, []string{"vip", "new"}, spec.Tags)
	assert.Equal(t, "google", spec.Platform)
	assert.Equal(t, "tags:vip,new|platform:google", spec.Encode())
}

func TestParseAudienceSpecReviewRequestEmptyTags(t *testing.T) {
	spec, err := ParseAudienceSpec("tags:|platform:yelp", models.BroadcastTypeReviewRequest)
	require.NoError(t, err)
	assert.Empty(t, spec.Tags)
	assert.Equal(t, "yelp", spec.Platform)
}

func TestParseAudienceSpecInvalid(t *testing.T) {
	cases := []struct {
		name          string
		raw           string
		broadcastType string
	}{
		{"empty", "", models.BroadcastTypeStandard},
		{"non-numeric standard", "not-a-number", models.BroadcastTypeStandard},
		{"missing platform part", "tags:vip", models.BroadcastTypeReviewRequest},
		{"wrong prefixes", "platform:google|tags:vip", models.BroadcastTypeReviewRequest},
		{"empty platform", "tags:vip|platform:", models.BroadcastTypeReviewRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAudienceSpec(tc.raw, tc.broadcastType)
			assert.Error(t, err)
		})
	}
}

func TestResolveTagORLogic(t *testing.T) {
	db := newTestDB(t)
	resolver := NewAudienceResolver(db)

	matching := createContact(t, db, 1, "ab@example.com", "", false, "a", "b")
	createContact(t, db, 1, "cd@example.com", "", false, "c", "d")

	// {a,b} matches filter {b,c}
	spec := &AudienceSpec{Kind: AudienceKindReviewRequest, Tags: []string{"b", "x"}, Platform: "google"}
	contacts, err := resolver.Resolve(1, spec, models.ChannelEmail)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, matching.ID, contacts[0].ID)

	// {a,b} does not match filter {x,y}
	spec.Tags = []string{"x", "y"}
	contacts, err = resolver.Resolve(1, spec, models.ChannelEmail)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestResolveDeduplicatesMultiTagMatches(t *testing.T) {
	db := newTestDB(t)
	resolver := NewAudienceResolver(db)

	createContact(t, db, 1, "both@example.com", "", false, "vip", "new")

	spec := &AudienceSpec{Kind: AudienceKindReviewRequest, Tags: []string{"vip", "new"}, Platform: "google"}
	contacts, err := resolver.Resolve(1, spec, models.ChannelEmail)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestResolveExcludesUnsubscribedAndWrongChannel(t *testing.T) {
	db := newTestDB(t)
	resolver := NewAudienceResolver(db)

	eligible := createContact(t, db, 1, "ok@example.com", "", false, "vip")
	createContact(t, db, 1, "unsub@example.com", "", true, "vip")
	createContact(t, db, 1, "", "+15550001", false, "vip") // no email

	spec := &AudienceSpec{Kind: AudienceKindReviewRequest, Tags: []string{"vip"}, Platform: "google"}
	contacts, err := resolver.Resolve(1, spec, models.ChannelEmail)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, eligible.ID, contacts[0].ID)

	// SMS channel needs a phone
	contacts, err = resolver.Resolve(1, spec, models.ChannelSMS)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "+15550001", contacts[0].Phone)
}

func TestResolveEmptyTagsMeansAllChannelEligible(t *testing.T) {
	db := newTestDB(t)
	resolver := NewAudienceResolver(db)

	createContact(t, db, 1, "a@example.com", "", false, "vip")
	createContact(t, db, 1, "b@example.com", "", false)
	createContact(t, db, 2, "other-user@example.com", "", false)

	audience := models.Audience{UserID: 1, Name: "everyone"}
	require.NoError(t, db.Create(&audience).Error)

	spec := &AudienceSpec{Kind: AudienceKindTagged, AudienceID: audience.ID}
	contacts, err := resolver.Resolve(1, spec, models.ChannelEmail)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
}

func TestResolveAudienceRowTags(t *testing.T) {
	db := newTestDB(t)
	resolver := NewAudienceResolver(db)

	tagged := createContact(t, db, 1, "vip@example.com", "", false, "vip")
	createContact(t, db, 1, "plain@example.com", "", false)

	audience := models.Audience{UserID: 1, Name: "vips", FilterTags: []string{"vip"}}
	require.NoError(t, db.Create(&audience).Error)

	spec := &AudienceSpec{Kind: AudienceKindTagged, AudienceID: audience.ID}
	contacts, err := resolver.Resolve(1, spec, models.ChannelEmail)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, tagged.ID, contacts[0].ID)
}

func TestResolveMissingAudience(t *testing.T) {
	db := newTestDB(t)
	resolver := NewAudienceResolver(db)

	spec := &AudienceSpec{Kind: AudienceKindTagged, AudienceID: 999}
	_, err := resolver.Resolve(1, spec, models.ChannelEmail)
	assert.Error(t, err)
}
