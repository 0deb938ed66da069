package models

import (
	"time"

	"gorm.io/gorm"
)

// Trigger types for automation sequences.
const (
	TriggerNewLeadAdded = "new_lead_added"
)

// Step actions.
const (
	StepActionSendEmail = "send_email"
	StepActionSendSMS   = "send_sms"
	StepActionWait      = "wait"
)

// AutomationSequence is an ordered set of steps executed per enrolled
// contact over time. Sequences are shared templates; per-contact state
// lives in AutomationContactProgress.
type AutomationSequence struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	TriggerType string `gorm:"not null;default:'new_lead_added'" json:"trigger_type"`
	IsActive    bool   `gorm:"default:false" json:"is_active"`

	// TotalExecutions counts enrollments, monotonically.
	TotalExecutions int `gorm:"default:0" json:"total_executions"`

	// Relations
	Steps []AutomationStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// AutomationStep is one step of a sequence. StepOrder is 0-based.
type AutomationStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	StepOrder int    `gorm:"not null" json:"step_order"`
	Action    string `gorm:"not null" json:"action"` // send_email, send_sms, wait
	Subject   string `json:"subject"`
	Body      string `gorm:"type:text" json:"body"`
	WaitDays  int    `json:"wait_days"`

	// ExecutedAt is the last execution timestamp across all enrolled
	// contacts. Informational only; never read for control flow.
	ExecutedAt *time.Time `json:"executed_at"`
}

// AutomationContactProgress is the per-contact, per-sequence cursor.
// Created on enrollment, updated on every advance, deleted on
// completion, unsubscribe, or missing contact.
type AutomationContactProgress struct {
	gorm.Model
	ContactID  uint `gorm:"not null;uniqueIndex:idx_progress_contact_sequence" json:"contact_id"`
	SequenceID uint `gorm:"not null;uniqueIndex:idx_progress_contact_sequence" json:"sequence_id"`

	CurrentStepID uint      `gorm:"not null" json:"current_step_id"`
	NextStepAt    time.Time `gorm:"not null;index" json:"next_step_at"`
}
