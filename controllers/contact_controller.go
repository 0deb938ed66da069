package controller

import (
	"log"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"reachly/models"
	"reachly/utils"
	"reachly/worker"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger

	// Automation handles new-lead enrollment when contacts arrive.
	Automation *worker.AutomationWorker
}

func NewContactController(db *gorm.DB, automation *worker.AutomationWorker, logger *log.Logger) *ContactController {
	return &ContactController{DB: db, Logger: logger, Automation: automation}
}

type CreateContactRequest struct {
	Email     string   `json:"email" validate:"omitempty,email"`
	Phone     string   `json:"phone" validate:"omitempty,max=32"`
	FirstName string   `json:"first_name" validate:"omitempty,max=100"`
	LastName  string   `json:"last_name" validate:"omitempty,max=100"`
	Company   string   `json:"company" validate:"omitempty,max=255"`
	Tags      []string `json:"tags"`
}

func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateContactRequest
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
	if req.Email == "" && req.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Contact needs an email or a phone number",
		})
	}
	if req.Email != "" {
		if err := checkmail.ValidateFormat(req.Email); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid email address",
			})
		}
	}

	contact := models.Contact{
		UserID:    user.ID,
		Email:     req.Email,
		Phone:     req.Phone,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Company:   req.Company,
	}
	for _, tag := range req.Tags {
		if tag != "" {
			contact.Tags = append(contact.Tags, models.ContactTag{Tag: tag})
		}
	}

	if err := cc.DB.Create(&contact).Error; err != nil {
		cc.Logger.Printf("Failed to create contact: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create contact",
		})
	}

	// A created contact is a new lead; enroll into active sequences.
	if err := cc.Automation.EnrollContact(user.ID, contact.ID); err != nil {
		cc.Logger.Printf("Enrollment for contact %d failed: %v", contact.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contact))
}

func (cc *ContactController) ListContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contacts []models.Contact
	query := cc.DB.Preload("Tags").Where("user_id = ?", user.ID)
	if tag := c.Query("tag"); tag != "" {
		query = query.
			Joins("JOIN contact_tags ON contact_tags.contact_id = contacts.id AND contact_tags.deleted_at IS NULL").
			Where("contact_tags.tag = ?", tag)
	}
	if err := query.Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}

	return c.JSON(utils.SuccessResponse(contacts))
}

// UnsubscribeContact flags a contact. Unsubscribed contacts drop out of
// audience resolution and their sequence progress ends on the next scan.
func (cc *ContactController) UnsubscribeContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	if err := cc.DB.Model(&contact).Update("is_unsubscribed", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to unsubscribe contact",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Contact unsubscribed",
	})
}

type CreateAudienceRequest struct {
	Name       string   `json:"name" validate:"required,max=255"`
	FilterTags []string `json:"filter_tags"`
}

func (cc *ContactController) CreateAudience(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateAudienceRequest
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

	audience := models.Audience{
		UserID:     user.ID,
		Name:       req.Name,
		FilterTags: req.FilterTags,
	}
	if err := cc.DB.Create(&audience).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create audience",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(audience))
}

func (cc *ContactController) ListAudiences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var audiences []models.Audience
	if err := cc.DB.Where("user_id = ?", user.ID).Find(&audiences).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch audiences",
		})
	}

	return c.JSON(utils.SuccessResponse(audiences))
}

type NewLeadEventRequest struct {
	ContactID uint `json:"contact_id" validate:"required"`
}

// HandleNewLeadEvent is the inbound hook for external contact-management
// modules: it enrolls an existing contact into the user's active
// new-lead sequences. Enrollment is idempotent.
func (cc *ContactController) HandleNewLeadEvent(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req NewLeadEventRequest
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

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND user_id = ?", req.ContactID, user.ID).First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	if err := cc.Automation.EnrollContact(user.ID, contact.ID); err != nil {
		cc.Logger.Printf("Enrollment for contact %d failed: %v", contact.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to enroll contact",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Contact enrolled",
	})
}
