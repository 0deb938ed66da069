package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"reachly/models"
	"reachly/utils"
)

// AutomationWorker advances per-contact drip-sequence progress records.
// The contract for send steps is "always advance": one bad message must
// never stall a sequence.
type AutomationWorker struct {
	DB         *gorm.DB
	Dispatcher *utils.Dispatcher
	Lock       *SchedulerLock
	Logger     *log.Logger
	Interval   time.Duration
}

func NewAutomationWorker(db *gorm.DB, dispatcher *utils.Dispatcher, logger *log.Logger) *AutomationWorker {
	return &AutomationWorker{
		DB:         db,
		Dispatcher: dispatcher,
		Logger:     logger,
		Interval:   time.Minute,
	}
}

func (aw *AutomationWorker) Start(ctx context.Context) {
	aw.Logger.Println("Automation worker started")

	ticker := time.NewTicker(aw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			aw.Logger.Println("Automation worker shutting down...")
			return
		case <-ticker.C:
			if !aw.Lock.TryAcquire(ctx) {
				continue
			}
			aw.ProcessDueProgress(ctx)
		}
	}
}

// ProcessDueProgress executes and advances every progress record whose
// next step is due. Per-record failures are logged and the scan
// continues.
func (aw *AutomationWorker) ProcessDueProgress(ctx context.Context) {
	var due []models.AutomationContactProgress
	if err := aw.DB.Where("next_step_at <= ?", time.Now()).Find(&due).Error; err != nil {
		aw.Logger.Printf("Error fetching due progress records: %v", err)
		return
	}

	for i := range due {
		if err := aw.processProgress(ctx, &due[i]); err != nil {
			aw.Logger.Printf("Error processing progress %d (contact %d, sequence %d): %v",
				due[i].ID, due[i].ContactID, due[i].SequenceID, err)
		}
	}
}

func (aw *AutomationWorker) processProgress(ctx context.Context, p *models.AutomationContactProgress) error {
	var seq models.AutomationSequence
	if err := aw.DB.First(&seq, p.SequenceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Sequence was deleted out from under the cursor.
			return aw.DB.Delete(p).Error
		}
		return err
	}

	// Inactive sequences are skipped for this pass only; the record
	// resumes if the sequence is reactivated.
	if !seq.IsActive {
		return nil
	}

	var step models.AutomationStep
	if err := aw.DB.First(&step, p.CurrentStepID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return aw.DB.Delete(p).Error
		}
		return err
	}

	var contact models.Contact
	if err := aw.DB.First(&contact, p.ContactID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Contact gone: the sequence ends silently for them.
			return aw.DB.Delete(p).Error
		}
		return err
	}
	if contact.IsUnsubscribed {
		return aw.DB.Delete(p).Error
	}

	aw.executeStep(ctx, &seq, &step, &contact)
	return aw.advance(p, &seq, &step)
}

// executeStep runs the current step. Send failures (missing channel
// address, transport error, timeout) are logged, never returned: the
// record advances regardless.
func (aw *AutomationWorker) executeStep(ctx context.Context, seq *models.AutomationSequence, step *models.AutomationStep, contact *models.Contact) {
	switch step.Action {
	case models.StepActionWait:
		// The delay was encoded into next_step_at by the previous
		// advance; nothing to do here.
	case models.StepActionSendEmail, models.StepActionSendSMS:
		channel := models.ChannelEmail
		if step.Action == models.StepActionSendSMS {
			channel = models.ChannelSMS
		}
		err := aw.Dispatcher.Dispatch(ctx, utils.DispatchRequest{
			UserID:  seq.UserID,
			Channel: channel,
			Contact: *contact,
			Subject: step.Subject,
			Body:    step.Body,
		})
		if err != nil {
			aw.Logger.Printf("Sequence %d step %d: send to contact %d failed: %v (advancing)",
				seq.ID, step.ID, contact.ID, err)
		}
	default:
		aw.Logger.Printf("Sequence %d step %d: unknown action %q (advancing)", seq.ID, step.ID, step.Action)
	}

	// Informational only; steps are shared templates across contacts.
	aw.DB.Model(step).Update("executed_at", time.Now())
}

// advance moves the cursor to the next step by order. Past the last
// step the sequence is complete for this contact and the record is
// deleted.
func (aw *AutomationWorker) advance(p *models.AutomationContactProgress, seq *models.AutomationSequence, step *models.AutomationStep) error {
	var next models.AutomationStep
	err := aw.DB.Where("sequence_id = ? AND step_order = ?", seq.ID, step.StepOrder+1).First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return aw.DB.Delete(p).Error
	}
	if err != nil {
		return err
	}

	return aw.DB.Model(p).Updates(map[string]interface{}{
		"current_step_id": next.ID,
		"next_step_at":    NextStepDueAt(&next, time.Now()),
	}).Error
}

// NextStepDueAt computes when a step becomes eligible: wait steps push
// the cursor out by WaitDays (default 1), send steps are due
// immediately on the next scan pass.
func NextStepDueAt(step *models.AutomationStep, now time.Time) time.Time {
	if step.Action == models.StepActionWait {
		days := step.WaitDays
		if days <= 0 {
			days = 1
		}
		return now.AddDate(0, 0, days)
	}
	return now
}

// EnrollContact reacts to a "new lead added" event: the contact is
// enrolled into every active new-lead sequence the user owns.
// Enrollment is idempotent per (contact, sequence).
func (aw *AutomationWorker) EnrollContact(userID, contactID uint) error {
	var sequences []models.AutomationSequence
	if err := aw.DB.Where("user_id = ? AND is_active = ? AND trigger_type = ?",
		userID, true, models.TriggerNewLeadAdded).Find(&sequences).Error; err != nil {
		return err
	}

	for i := range sequences {
		if err := aw.enrollInSequence(&sequences[i], contactID); err != nil {
			aw.Logger.Printf("Failed to enroll contact %d in sequence %d: %v", contactID, sequences[i].ID, err)
		}
	}
	return nil
}

func (aw *AutomationWorker) enrollInSequence(seq *models.AutomationSequence, contactID uint) error {
	var existing models.AutomationContactProgress
	err := aw.DB.Where("contact_id = ? AND sequence_id = ?", contactID, seq.ID).First(&existing).Error
	if err == nil {
		return nil // already enrolled
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var first models.AutomationStep
	err = aw.DB.Where("sequence_id = ?", seq.ID).Order("step_order asc").First(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // empty sequence, nothing to run
	}
	if err != nil {
		return err
	}

	progress := models.AutomationContactProgress{
		ContactID:     contactID,
		SequenceID:    seq.ID,
		CurrentStepID: first.ID,
		NextStepAt:    NextStepDueAt(&first, time.Now()),
	}
	if err := aw.DB.Create(&progress).Error; err != nil {
		return err
	}

	return aw.DB.Model(seq).
		Update("total_executions", gorm.Expr("total_executions + ?", 1)).Error
}
