package controller

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"reachly/models"
)

type broadcastProgress struct {
	Status          string `json:"status"`
	TotalRecipients int    `json:"total_recipients"`
	SentCount       int    `json:"sent_count"`
	FailedCount     int    `json:"failed_count"`
	Percent         int    `json:"percent"`
}

// HandleBroadcastProgressWS streams live counter snapshots for one
// broadcast until it reaches a terminal state.
func (bc *BroadcastController) HandleBroadcastProgressWS(c *websocket.Conn) {
	defer c.Close()

	var input struct {
		BroadcastID uint `json:"broadcast_id"`
	}
	if err := c.ReadJSON(&input); err != nil {
		bc.Logger.Printf("Error reading WS message: %v", err)
		return
	}

	userID, _ := c.Locals("userID").(uint)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		var broadcast models.Broadcast
		if err := bc.DB.Where("id = ? AND user_id = ?", input.BroadcastID, userID).
			First(&broadcast).Error; err != nil {
			bc.Logger.Printf("WS: broadcast %d not found: %v", input.BroadcastID, err)
			return
		}

		progress := broadcastProgress{
			Status:          broadcast.Status,
			TotalRecipients: broadcast.TotalRecipients,
			SentCount:       broadcast.SentCount,
			FailedCount:     broadcast.FailedCount,
		}
		if broadcast.TotalRecipients > 0 {
			progress.Percent = (broadcast.SentCount + broadcast.FailedCount) * 100 / broadcast.TotalRecipients
		}

		if err := c.WriteJSON(progress); err != nil {
			bc.Logger.Printf("Error writing WS message: %v", err)
			return
		}

		if broadcast.Status == models.BroadcastStatusSent || broadcast.Status == models.BroadcastStatusFailed {
			return
		}
	}
}
