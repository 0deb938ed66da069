package worker

import (
	"log"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"reachly/models"
)

// DailyCounterReset clears per-user send counters at midnight so daily
// send caps roll over.
type DailyCounterReset struct {
	DB     *gorm.DB
	Logger *log.Logger

	cron *cron.Cron
}

func NewDailyCounterReset(db *gorm.DB, logger *log.Logger) *DailyCounterReset {
	return &DailyCounterReset{DB: db, Logger: logger}
}

func (r *DailyCounterReset) Start() error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc("0 0 * * *", r.reset); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *DailyCounterReset) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

func (r *DailyCounterReset) reset() {
	if err := r.DB.Model(&models.User{}).
		Where("sent_today > 0").
		Update("sent_today", 0).Error; err != nil {
		r.Logger.Printf("Failed to reset daily send counters: %v", err)
		return
	}
	r.Logger.Println("Successfully reset daily send counters")
}
