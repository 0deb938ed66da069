package controller

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"reachly/models"
	"reachly/utils"
)

type BroadcastController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewBroadcastController(db *gorm.DB, logger *log.Logger) *BroadcastController {
	return &BroadcastController{DB: db, Logger: logger}
}

type ContentVersionRequest struct {
	Variant string `json:"variant" validate:"required,oneof=A B"`
	Subject string `json:"subject" validate:"omitempty,max=255"`
	Body    string `json:"body" validate:"required"`
}

type AbTestRequest struct {
	TestSizePercentage int `json:"test_size_percentage" validate:"required,min=1,max=100"`
	VariantASize       int `json:"variant_a_size" validate:"required,min=0,max=100"`
	VariantBSize       int `json:"variant_b_size" validate:"required,min=0,max=100"`
	TestDurationHours  int `json:"test_duration_hours" validate:"omitempty,min=1,max=168"`
}

type CreateBroadcastRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Channel string `json:"channel" validate:"required,oneof=email sms"`
	Type    string `json:"type" validate:"omitempty,oneof=standard review_request"`

	// Standard broadcasts target an audience row; review requests
	// carry tags and a platform inline.
	AudienceID uint     `json:"audience_id"`
	Tags       []string `json:"tags"`
	Platform   string   `json:"platform"`

	Versions []ContentVersionRequest `json:"versions" validate:"required,min=1,max=2,dive"`
	AbTest   *AbTestRequest          `json:"ab_test"`
}

func (bc *BroadcastController) CreateBroadcast(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateBroadcastRequest
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

	if req.Type == "" {
		req.Type = models.BroadcastTypeStandard
	}

	spec, err := bc.buildAudienceSpec(user.ID, &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if req.AbTest != nil {
		if len(req.Versions) < 2 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "A/B testing requires two content versions",
			})
		}
		if req.AbTest.VariantASize+req.AbTest.VariantBSize != 100 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Variant sizes must sum to 100",
			})
		}
	}

	broadcast := models.Broadcast{
		UserID:       user.ID,
		Name:         req.Name,
		Channel:      req.Channel,
		Type:         req.Type,
		AudienceSpec: spec.Encode(),
		Status:       models.BroadcastStatusDraft,
	}
	if req.AbTest != nil {
		broadcast.AbTest = &models.AbTestConfig{
			TestSizePercentage: req.AbTest.TestSizePercentage,
			VariantASize:       req.AbTest.VariantASize,
			VariantBSize:       req.AbTest.VariantBSize,
			TestDurationHours:  req.AbTest.TestDurationHours,
		}
	}
	for _, v := range req.Versions {
		broadcast.Versions = append(broadcast.Versions, models.ContentVersion{
			Variant: v.Variant,
			Subject: v.Subject,
			Body:    v.Body,
		})
	}

	if err := bc.DB.Create(&broadcast).Error; err != nil {
		bc.Logger.Printf("Failed to create broadcast: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create broadcast",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(broadcast))
}

// buildAudienceSpec validates the targeting half of a create request
// and returns the decoded spec.
func (bc *BroadcastController) buildAudienceSpec(userID uint, req *CreateBroadcastRequest) (*utils.AudienceSpec, error) {
	if req.Type == models.BroadcastTypeReviewRequest {
		if req.Platform == "" {
			return nil, fiber.NewError(fiber.StatusBadRequest, "platform is required for review requests")
		}
		// Keep the wire encoding unambiguous.
		if strings.Contains(req.Platform, "|") || strings.HasPrefix(req.Platform, "tags:") {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid platform name")
		}
		return &utils.AudienceSpec{
			Kind:     utils.AudienceKindReviewRequest,
			Tags:     req.Tags,
			Platform: req.Platform,
		}, nil
	}

	var audience models.Audience
	if err := bc.DB.Where("id = ? AND user_id = ?", req.AudienceID, userID).First(&audience).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "audience not found")
	}
	return &utils.AudienceSpec{Kind: utils.AudienceKindTagged, AudienceID: audience.ID}, nil
}

func (bc *BroadcastController) ListBroadcasts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var broadcasts []models.Broadcast
	query := bc.DB.Where("user_id = ?", user.ID).Order("created_at desc")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&broadcasts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch broadcasts",
		})
	}

	return c.JSON(utils.SuccessResponse(broadcasts))
}

func (bc *BroadcastController) GetBroadcast(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var broadcast models.Broadcast
	if err := bc.DB.Preload("Versions").
		Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&broadcast).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Broadcast not found",
		})
	}

	return c.JSON(utils.SuccessResponse(broadcast))
}

type ScheduleBroadcastRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// ScheduleBroadcast transitions draft → scheduled. The scheduler's
// due-broadcast scan picks it up once scheduled_at passes.
func (bc *BroadcastController) ScheduleBroadcast(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var broadcast models.Broadcast
	if err := bc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&broadcast).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Broadcast not found",
		})
	}

	if broadcast.Status != models.BroadcastStatusDraft {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only draft broadcasts can be scheduled",
		})
	}

	var req ScheduleBroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ScheduledAt.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "scheduled_at is required",
		})
	}

	if err := bc.DB.Model(&broadcast).Updates(map[string]interface{}{
		"status":         models.BroadcastStatusScheduled,
		"scheduled_at":   req.ScheduledAt,
		"next_action_at": req.ScheduledAt,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to schedule broadcast",
		})
	}

	return c.JSON(fiber.Map{
		"message":      "Broadcast scheduled",
		"scheduled_at": req.ScheduledAt,
	})
}

// CancelBroadcast transitions scheduled → draft before the scheduler
// picks the broadcast up.
func (bc *BroadcastController) CancelBroadcast(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var broadcast models.Broadcast
	if err := bc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&broadcast).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Broadcast not found",
		})
	}

	if broadcast.Status != models.BroadcastStatusScheduled {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only scheduled broadcasts can be canceled",
		})
	}

	if err := bc.DB.Model(&broadcast).Updates(map[string]interface{}{
		"status":         models.BroadcastStatusDraft,
		"next_action_at": nil,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel broadcast",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Broadcast canceled",
	})
}

// GetBroadcastStats returns the denormalized counters for a broadcast.
func (bc *BroadcastController) GetBroadcastStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var broadcast models.Broadcast
	if err := bc.DB.Preload("Versions").
		Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&broadcast).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Broadcast not found",
		})
	}

	stats := fiber.Map{
		"status":           broadcast.Status,
		"total_recipients": broadcast.TotalRecipients,
		"sent_count":       broadcast.SentCount,
		"failed_count":     broadcast.FailedCount,
		"open_count":       broadcast.OpenCount,
		"click_count":      broadcast.ClickCount,
		"started_at":       broadcast.StartedAt,
		"completed_at":     broadcast.CompletedAt,
		"last_error":       broadcast.LastError,
	}
	if broadcast.AbTest != nil {
		stats["winner_variant"] = broadcast.AbTest.WinnerVariant
		variants := fiber.Map{}
		for _, v := range broadcast.Versions {
			variants[v.Variant] = fiber.Map{
				"sent_count": v.SentCount,
				"open_count": v.OpenCount,
			}
		}
		stats["variants"] = variants
	}

	return c.JSON(stats)
}
