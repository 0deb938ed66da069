package utils

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"reachly/models"
)

var (
	// ErrDispatchTimeout is returned when a transport call exceeds the
	// dispatch timeout. Callers count it like any other send failure.
	ErrDispatchTimeout = errors.New("dispatch timed out")

	// ErrDailyLimitReached is returned when the owning user is over
	// their daily send cap.
	ErrDailyLimitReached = errors.New("daily send limit reached")
)

// ReviewLinkPlaceholder is replaced with the generated link when it
// appears in a review-request body; otherwise the link is appended.
const ReviewLinkPlaceholder = "{{review_link}}"

// DispatchRequest carries everything needed to send one message to one
// contact over one channel.
type DispatchRequest struct {
	UserID  uint
	Channel string // email, sms
	Contact models.Contact
	Subject string // ignored for SMS
	Body    string

	// Review-request personalization; empty for standard sends.
	BroadcastType string
	Platform      string
}

// Dispatcher sends one message per call and isolates failures: it never
// panics past its caller and every failure comes back as an error. The
// caller is solely responsible for sent/failed counter bookkeeping.
type Dispatcher struct {
	DB      *gorm.DB
	Email   EmailTransport
	SMS     SMSTransport
	Links   *ReviewLinkBuilder
	Logger  *log.Logger
	Timeout time.Duration
}

func NewDispatcher(db *gorm.DB, email EmailTransport, sms SMSTransport, links *ReviewLinkBuilder, logger *log.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		DB:      db,
		Email:   email,
		SMS:     sms,
		Links:   links,
		Logger:  logger,
		Timeout: timeout,
	}
}

// Dispatch renders the final body and invokes the channel transport.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()

	address := req.Contact.AddressFor(req.Channel)
	if address == "" {
		return fmt.Errorf("contact %d has no %s address", req.Contact.ID, req.Channel)
	}

	if err := d.checkDailyLimit(req.UserID); err != nil {
		return err
	}

	body := d.renderBody(req)

	if err := d.sendWithTimeout(ctx, req.Channel, address, req.Subject, body); err != nil {
		return err
	}

	d.recordSend(req.UserID)
	return nil
}

// renderBody applies per-recipient personalization. Link generation is
// best-effort: on failure the original body is used unchanged.
func (d *Dispatcher) renderBody(req DispatchRequest) string {
	if req.BroadcastType != models.BroadcastTypeReviewRequest {
		return req.Body
	}

	link, err := d.Links.BuildLink(req.UserID, req.Contact.ID, req.Platform)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Printf("review link for contact %d unavailable: %v", req.Contact.ID, err)
		}
		return req.Body
	}

	if strings.Contains(req.Body, ReviewLinkPlaceholder) {
		return strings.ReplaceAll(req.Body, ReviewLinkPlaceholder, link)
	}
	return req.Body + "\n\n" + link
}

// sendWithTimeout runs the blocking transport call under a bounded
// timeout so a stuck transport cannot stall an entire scan.
func (d *Dispatcher) sendWithTimeout(ctx context.Context, channel, address, subject, body string) error {
	type sendResult struct {
		err error
	}

	done := make(chan sendResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- sendResult{err: fmt.Errorf("transport panicked: %v", r)}
			}
		}()

		var err error
		switch channel {
		case models.ChannelSMS:
			if d.SMS == nil {
				err = fmt.Errorf("SMS transport not configured")
			} else {
				// SMS has no subject; body only.
				_, err = d.SMS.Send(address, body)
			}
		default:
			if d.Email == nil {
				err = fmt.Errorf("email transport not configured")
			} else {
				_, err = d.Email.Send(address, subject, body)
			}
		}
		done <- sendResult{err: err}
	}()

	timer := time.NewTimer(d.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.err
	case <-timer.C:
		return ErrDispatchTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) checkDailyLimit(userID uint) error {
	if d.DB == nil || userID == 0 {
		return nil
	}
	var user models.User
	if err := d.DB.Select("daily_send_limit", "sent_today").First(&user, userID).Error; err != nil {
		// Missing owner is not the recipient's fault; let the send through.
		return nil
	}
	if user.DailySendLimit > 0 && user.SentToday >= user.DailySendLimit {
		return ErrDailyLimitReached
	}
	return nil
}

func (d *Dispatcher) recordSend(userID uint) {
	if d.DB == nil || userID == 0 {
		return
	}
	if err := d.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("sent_today", gorm.Expr("sent_today + ?", 1)).Error; err != nil && d.Logger != nil {
		d.Logger.Printf("failed to update sent_today for user %d: %v", userID, err)
	}
}
