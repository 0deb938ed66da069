package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"reachly/models"
	"reachly/utils"
)

type AutomationController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAutomationController(db *gorm.DB, logger *log.Logger) *AutomationController {
	return &AutomationController{DB: db, Logger: logger}
}

type AutomationStepRequest struct {
	Action   string `json:"action" validate:"required,oneof=send_email send_sms wait"`
	Subject  string `json:"subject" validate:"omitempty,max=255"`
	Body     string `json:"body"`
	WaitDays int    `json:"wait_days" validate:"omitempty,min=1,max=365"`
}

type CreateSequenceRequest struct {
	Name        string                  `json:"name" validate:"required,max=255"`
	TriggerType string                  `json:"trigger_type" validate:"omitempty,oneof=new_lead_added"`
	Steps       []AutomationStepRequest `json:"steps" validate:"required,min=1,dive"`
}

func (ac *AutomationController) CreateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateSequenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	for _, step := range req.Steps {
		if step.Action != models.StepActionWait && step.Body == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "send steps require a body",
			})
		}
	}

	if req.TriggerType == "" {
		req.TriggerType = models.TriggerNewLeadAdded
	}

	sequence := models.AutomationSequence{
		UserID:      user.ID,
		Name:        req.Name,
		TriggerType: req.TriggerType,
	}
	for i, step := range req.Steps {
		sequence.Steps = append(sequence.Steps, models.AutomationStep{
			StepOrder: i,
			Action:    step.Action,
			Subject:   step.Subject,
			Body:      step.Body,
			WaitDays:  step.WaitDays,
		})
	}

	if err := ac.DB.Create(&sequence).Error; err != nil {
		ac.Logger.Printf("Failed to create sequence: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

func (ac *AutomationController) ListSequences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequences []models.AutomationSequence
	if err := ac.DB.Where("user_id = ?", user.ID).Order("created_at desc").Find(&sequences).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequences",
		})
	}

	return c.JSON(utils.SuccessResponse(sequences))
}

func (ac *AutomationController) GetSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.AutomationSequence
	if err := ac.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order asc")
	}).Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	return c.JSON(utils.SuccessResponse(sequence))
}

type SetSequenceActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SetSequenceActive pauses or resumes a sequence. Pausing leaves
// progress records in place; they resume when reactivated.
func (ac *AutomationController) SetSequenceActive(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.AutomationSequence
	if err := ac.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var req SetSequenceActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ac.DB.Model(&sequence).Update("is_active", req.IsActive).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}

	return c.JSON(fiber.Map{
		"message":   "Sequence updated",
		"is_active": req.IsActive,
	})
}

func (ac *AutomationController) DeleteSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.AutomationSequence
	if err := ac.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	// Progress records go with the sequence; enrolled contacts stop
	// receiving steps immediately.
	if err := ac.DB.Where("sequence_id = ?", sequence.ID).
		Delete(&models.AutomationContactProgress{}).Error; err != nil {
		ac.Logger.Printf("Failed to delete progress records for sequence %d: %v", sequence.ID, err)
	}
	if err := ac.DB.Where("sequence_id = ?", sequence.ID).Delete(&models.AutomationStep{}).Error; err != nil {
		ac.Logger.Printf("Failed to delete steps for sequence %d: %v", sequence.ID, err)
	}
	if err := ac.DB.Delete(&sequence).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sequence",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sequence deleted",
	})
}
