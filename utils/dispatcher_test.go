package utils

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reachly/models"
)

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type fakeEmailTransport struct {
	mu    sync.Mutex
	sent  []sentMessage
	err   error
	delay time.Duration
	panic bool
}

func (f *fakeEmailTransport) Send(to, subject, body string) (string, error) {
	if f.panic {
		panic("transport blew up")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{To: to, Subject: subject, Body: body})
	f.mu.Unlock()
	return "email-msg-1", nil
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
	return "sms-msg-1", nil
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestDispatcher(email EmailTransport, sms SMSTransport) *Dispatcher {
	return NewDispatcher(nil, email, sms,
		NewReviewLinkBuilder("https://reviews.example.com"), discardLogger(), time.Second)
}

func TestDispatchEmail(t *testing.T) {
	email := &fakeEmailTransport{}
	d := newTestDispatcher(email, &fakeSMSTransport{})

	err := d.Dispatch(context.Background(), DispatchRequest{
		Channel: models.ChannelEmail,
		Contact: models.Contact{Email: "to@example.com"},
		Subject: "Hello",
		Body:    "<p>Hi</p>",
	})
	require.NoError(t, err)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "to@example.com", email.sent[0].To)
	assert.Equal(t, "Hello", email.sent[0].Subject)
}

func TestDispatchSMSUsesPhoneAndDropsSubject(t *testing.T) {
	sms := &fakeSMSTransport{}
	email := &fakeEmailTransport{}
	d := newTestDispatcher(email, sms)

	err := d.Dispatch(context.Background(), DispatchRequest{
		Channel: models.ChannelSMS,
		Contact: models.Contact{Phone: "+15550001"},
		Subject: "ignored",
		Body:    "short text",
	})
	require.NoError(t, err)
	require.Len(t, sms.sent, 1)
	assert.Equal(t, "+15550001", sms.sent[0].To)
	assert.Equal(t, "short text", sms.sent[0].Body)
	assert.Empty(t, email.sent)
}

func TestDispatchMissingAddress(t *testing.T) {
	d := newTestDispatcher(&fakeEmailTransport{}, &fakeSMSTransport{})

	err := d.Dispatch(context.Background(), DispatchRequest{
		Channel: models.ChannelSMS,
		Contact: models.Contact{Email: "only-email@example.com"},
		Body:    "text",
	})
	assert.Error(t, err)
}

func TestDispatchTimeoutCountsAsFailure(t *testing.T) {
	email := &fakeEmailTransport{delay: 200 * time.Millisecond}
	d := newTestDispatcher(email, &fakeSMSTransport{})
	d.Timeout = 20 * time.Millisecond

	err := d.Dispatch(context.Background(), DispatchRequest{
		Channel: models.ChannelEmail,
		Contact: models.Contact{Email: "slow@example.com"},
		Body:    "body",
	})
	assert.ErrorIs(t, err, ErrDispatchTimeout)
}

func TestDispatchTransportPanicIsContained(t *testing.T) {
	email := &fakeEmailTransport{panic: true}
	d := newTestDispatcher(email, &fakeSMSTransport{})

	err := d.Dispatch(context.Background(), DispatchRequest{
		Channel: models.ChannelEmail,
		Contact: models.Contact{Email: "boom@example.com"},
		Body:    "body",
	})
	assert.Error(t, err)
}

func TestDispatchReviewRequestInjectsLink(t *testing.T) {
	email := &fakeEmailTransport{}
	d := newTestDispatcher(email, &fakeSMSTransport{})

	contact := models.Contact{Email: "reviewer@example.com"}
	contact.ID = 7

	err := d.Dispatch(context.Background(), DispatchRequest{
		UserID:        0,
		Channel:       models.ChannelEmail,
		Contact:       contact,
		Subject:       "How did we do?",
		Body:          "Please leave a review: " + ReviewLinkPlaceholder,
		BroadcastType: models.BroadcastTypeReviewRequest,
		Platform:      "google",
	})
	require.NoError(t, err)
	require.Len(t, email.sent, 1)
	assert.Contains(t, email.sent[0].Body, "https://reviews.example.com/r/")
	assert.Contains(t, email.sent[0].Body, "platform=google")
	assert.NotContains(t, email.sent[0].Body, ReviewLinkPlaceholder)
}

func TestDispatchReviewRequestLinkFailureFallsBack(t *testing.T) {
	email := &fakeEmailTransport{}
	// No base URL configured: link generation fails, body is unchanged.
	d := NewDispatcher(nil, email, &fakeSMSTransport{}, NewReviewLinkBuilder(""), discardLogger(), time.Second)

	body := "Please leave a review."
	err := d.Dispatch(context.Background(), DispatchRequest{
		Channel:       models.ChannelEmail,
		Contact:       models.Contact{Email: "reviewer@example.com"},
		Body:          body,
		BroadcastType: models.BroadcastTypeReviewRequest,
		Platform:      "google",
	})
	require.NoError(t, err)
	require.Len(t, email.sent, 1)
	assert.Equal(t, body, email.sent[0].Body)
}

func TestDispatchDailyLimit(t *testing.T) {
	db := newTestDB(t)

	user := models.User{Email: "capped@example.com", PasswordHash: "x", DailySendLimit: 2, SentToday: 2}
	require.NoError(t, db.Create(&user).Error)

	email := &fakeEmailTransport{}
	d := NewDispatcher(db, email, &fakeSMSTransport{},
		NewReviewLinkBuilder(""), discardLogger(), time.Second)

	err := d.Dispatch(context.Background(), DispatchRequest{
		UserID:  user.ID,
		Channel: models.ChannelEmail,
		Contact: models.Contact{Email: "to@example.com"},
		Body:    "body",
	})
	assert.ErrorIs(t, err, ErrDailyLimitReached)
	assert.Empty(t, email.sent)
}

func TestDispatchIncrementsSentToday(t *testing.T) {
	db := newTestDB(t)

	user := models.User{Email: "sender@example.com", PasswordHash: "x", DailySendLimit: 100}
	require.NoError(t, db.Create(&user).Error)

	d := NewDispatcher(db, &fakeEmailTransport{}, &fakeSMSTransport{},
		NewReviewLinkBuilder(""), discardLogger(), time.Second)

	require.NoError(t, d.Dispatch(context.Background(), DispatchRequest{
		UserID:  user.ID,
		Channel: models.ChannelEmail,
		Contact: models.Contact{Email: "to@example.com"},
		Body:    "body",
	}))

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.Equal(t, 1, reloaded.SentToday)
}

func TestDispatchTransportError(t *testing.T) {
	email := &fakeEmailTransport{err: errors.New("smtp unavailable")}
	d := newTestDispatcher(email, &fakeSMSTransport{})

	err := d.Dispatch(context.Background(), DispatchRequest{
		Channel: models.ChannelEmail,
		Contact: models.Contact{Email: "to@example.com"},
		Body:    "body",
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "smtp unavailable"))
}
