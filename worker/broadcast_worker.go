package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reachly/models"
	"reachly/utils"
)

var (
	// ErrNoEligibleContacts fails a broadcast whose audience resolves
	// to nobody (all unsubscribed, wrong channel, empty audience).
	ErrNoEligibleContacts = errors.New("no eligible contacts in audience")

	// ErrMissingVariant fails an A/B broadcast that lacks variant A or
	// B content. Nothing is sent.
	ErrMissingVariant = errors.New("A/B test requires both variant A and variant B content")

	// ErrNoContent fails a broadcast with no content version at all.
	ErrNoContent = errors.New("broadcast has no content")
)

// BroadcastWorker drives the broadcast state machine. Two scans run on
// every tick: due broadcasts (status=scheduled) and due winner checks
// (status=testing). A single bad record never halts a scan.
type BroadcastWorker struct {
	DB         *gorm.DB
	Dispatcher *utils.Dispatcher
	Resolver   *utils.AudienceResolver
	Scorer     VariantScorer
	Lock       *SchedulerLock
	Logger     *log.Logger
	Interval   time.Duration
}

func NewBroadcastWorker(db *gorm.DB, dispatcher *utils.Dispatcher, logger *log.Logger) *BroadcastWorker {
	return &BroadcastWorker{
		DB:         db,
		Dispatcher: dispatcher,
		Resolver:   utils.NewAudienceResolver(db),
		Scorer:     OpenRateScorer{},
		Logger:     logger,
		Interval:   time.Minute,
	}
}

func (bw *BroadcastWorker) Start(ctx context.Context) {
	bw.Logger.Println("Broadcast worker started")

	ticker := time.NewTicker(bw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.Logger.Println("Broadcast worker shutting down...")
			return
		case <-ticker.C:
			if !bw.Lock.TryAcquire(ctx) {
				continue
			}
			bw.ProcessDueBroadcasts(ctx)
			bw.ProcessDueWinnerChecks(ctx)
		}
	}
}

// ProcessDueBroadcasts picks up scheduled broadcasts whose send time
// has arrived and runs each through the A/B path or the plain full
// send. Per-broadcast failures mark that broadcast failed and the scan
// continues.
func (bw *BroadcastWorker) ProcessDueBroadcasts(ctx context.Context) {
	var due []models.Broadcast
	if err := bw.DB.Preload("Versions").
		Where("status = ? AND next_action_at <= ?", models.BroadcastStatusScheduled, time.Now()).
		Find(&due).Error; err != nil {
		bw.Logger.Printf("Error fetching due broadcasts: %v", err)
		return
	}

	for i := range due {
		if err := bw.processBroadcast(ctx, &due[i]); err != nil {
			bw.failBroadcast(&due[i], err)
		}
	}
}

// ProcessDueWinnerChecks picks up testing broadcasts whose test window
// has elapsed and sends the winning content to the remaining slice.
func (bw *BroadcastWorker) ProcessDueWinnerChecks(ctx context.Context) {
	var due []models.Broadcast
	if err := bw.DB.Preload("Versions").
		Where("status = ? AND next_action_at <= ?", models.BroadcastStatusTesting, time.Now()).
		Find(&due).Error; err != nil {
		bw.Logger.Printf("Error fetching due winner checks: %v", err)
		return
	}

	for i := range due {
		if err := bw.processWinnerCheck(ctx, &due[i]); err != nil {
			bw.failBroadcast(&due[i], err)
		}
	}
}

func (bw *BroadcastWorker) processBroadcast(ctx context.Context, b *models.Broadcast) error {
	spec, err := utils.ParseAudienceSpec(b.AudienceSpec, b.Type)
	if err != nil {
		return fmt.Errorf("parsing audience spec: %w", err)
	}

	contacts, err := bw.Resolver.Resolve(b.UserID, spec, b.Channel)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		return ErrNoEligibleContacts
	}

	if b.AbTest != nil && len(b.Versions) >= 2 {
		return bw.startABTest(ctx, b, spec, contacts)
	}
	return bw.sendToAll(ctx, b, spec, contacts)
}

// sendToAll is the plain full-send path: scheduled → sending → sent.
func (bw *BroadcastWorker) sendToAll(ctx context.Context, b *models.Broadcast, spec *utils.AudienceSpec, contacts []models.Contact) error {
	version := b.PrimaryVersion()
	if version == nil {
		return ErrNoContent
	}

	if err := bw.DB.Model(b).Updates(map[string]interface{}{
		"status":           models.BroadcastStatusSending,
		"started_at":       time.Now(),
		"total_recipients": len(contacts),
		"next_action_at":   nil,
	}).Error; err != nil {
		return fmt.Errorf("failed to mark broadcast sending: %w", err)
	}

	sent, failed := bw.dispatchSlice(ctx, b, version, spec, contacts)

	if err := bw.DB.Model(b).Updates(map[string]interface{}{
		"status":       models.BroadcastStatusSent,
		"completed_at": time.Now(),
	}).Error; err != nil {
		return fmt.Errorf("failed to mark broadcast sent: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"broadcast_id": b.ID,
		"channel":      b.Channel,
		"sent":         sent,
		"failed":       failed,
	}).Info("broadcast completed")
	return nil
}

// dispatchSlice sends one content version to every contact in a slice.
// Send failures are isolated per recipient; counters are applied as
// atomic increments so a partial re-run never double counts a row
// update in memory.
func (bw *BroadcastWorker) dispatchSlice(ctx context.Context, b *models.Broadcast, version *models.ContentVersion, spec *utils.AudienceSpec, contacts []models.Contact) (sent, failed int) {
	for i := range contacts {
		err := bw.Dispatcher.Dispatch(ctx, utils.DispatchRequest{
			UserID:        b.UserID,
			Channel:       b.Channel,
			Contact:       contacts[i],
			Subject:       version.Subject,
			Body:          version.Body,
			BroadcastType: b.Type,
			Platform:      spec.Platform,
		})
		if err != nil {
			failed++
			bw.DB.Model(b).Update("failed_count", gorm.Expr("failed_count + ?", 1))
			bw.Logger.Printf("Broadcast %d: send to contact %d failed: %v", b.ID, contacts[i].ID, err)
			continue
		}

		sent++
		bw.DB.Model(b).Update("sent_count", gorm.Expr("sent_count + ?", 1))
		bw.DB.Model(version).Update("sent_count", gorm.Expr("sent_count + ?", 1))
	}
	return sent, failed
}

// failBroadcast marks a broadcast failed and reports it. Failed
// broadcasts are surfaced to the owner, not retried.
func (bw *BroadcastWorker) failBroadcast(b *models.Broadcast, err error) {
	bw.Logger.Printf("Broadcast %d failed: %v", b.ID, err)

	logrus.WithFields(logrus.Fields{
		"broadcast_id": b.ID,
		"user_id":      b.UserID,
		"status":       b.Status,
	}).Error(err)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("broadcast_id", fmt.Sprintf("%d", b.ID))
		scope.SetTag("channel", b.Channel)
		sentry.CaptureException(err)
	})

	if dbErr := bw.DB.Model(b).Updates(map[string]interface{}{
		"status":         models.BroadcastStatusFailed,
		"last_error":     err.Error(),
		"next_action_at": nil,
	}).Error; dbErr != nil {
		bw.Logger.Printf("Failed to mark broadcast %d failed: %v", b.ID, dbErr)
	}
}
