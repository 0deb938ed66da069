package worker

import (
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reachly/models"
	"reachly/utils"
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
		&models.AutomationSequence{},
		&models.AutomationStep{},
		&models.AutomationContactProgress{},
	))
	return db
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type fakeEmailTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeEmailTransport) Send(to, subject, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{To: to, Subject: subject, Body: body})
	f.mu.Unlock()
	return "email-msg", nil
}

func (f *fakeEmailTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSMSTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSMSTransport) Send(to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	f.mu.Unlock()
	return "sms-msg", nil
}

func newTestDispatcher(db *gorm.DB, email utils.EmailTransport, sms utils.SMSTransport) *utils.Dispatcher {
	return utils.NewDispatcher(db, email, sms,
		utils.NewReviewLinkBuilder("https://reviews.example.com"), testLogger(), time.Second)
}

func createTestUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()

	user := models.User{
		Email:          fmt.Sprintf("%s@example.com", uuid.New().String()),
		PasswordHash:   "x",
		DailySendLimit: 100000,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createTaggedContacts(t *testing.T, db *gorm.DB, userID uint, n int, tag string) []models.Contact {
	t.Helper()

	contacts := make([]models.Contact, 0, n)
	for i := 0; i < n; i++ {
		contact := models.Contact{
			UserID: userID,
			Email:  fmt.Sprintf("contact%d-%s@example.com", i, uuid.New().String()[:8]),
			Phone:  fmt.Sprintf("+1555%07d", i),
			Tags:   []models.ContactTag{{Tag: tag}},
		}
		require.NoError(t, db.Create(&contact).Error)
		contacts = append(contacts, contact)
	}
	return contacts
}

func createAudience(t *testing.T, db *gorm.DB, userID uint, tags ...string) models.Audience {
	t.Helper()

	audience := models.Audience{UserID: userID, Name: "test audience", FilterTags: tags}
	require.NoError(t, db.Create(&audience).Error)
	return audience
}
