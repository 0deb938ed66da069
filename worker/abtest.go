package worker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reachly/models"
	"reachly/utils"
)

const defaultTestDurationHours = 24

// SplitAudience partitions contacts into three disjoint slices: the
// variant-A test group, the variant-B test group, and the remainder.
// The order is shuffled first so the split carries no list-position
// bias. Sizes use floor arithmetic: testSize = N*pct/100, aSize =
// testSize*aPct/100, bSize = testSize-aSize.
func SplitAudience(contacts []models.Contact, cfg *models.AbTestConfig) (groupA, groupB, remaining []models.Contact) {
	shuffled := make([]models.Contact, len(contacts))
	copy(shuffled, contacts)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	testSize := len(shuffled) * cfg.TestSizePercentage / 100
	if testSize > len(shuffled) {
		testSize = len(shuffled)
	}
	aSize := testSize * cfg.VariantASize / 100

	return shuffled[:aSize], shuffled[aSize:testSize], shuffled[testSize:]
}

// startABTest runs the scheduled → testing transition: both variants go
// to their test slices now, the winner check is scheduled for
// testDurationHours out, and the remainder waits for the evaluator.
func (bw *BroadcastWorker) startABTest(ctx context.Context, b *models.Broadcast, spec *utils.AudienceSpec, contacts []models.Contact) error {
	versionA := b.VersionFor(models.VariantA)
	versionB := b.VersionFor(models.VariantB)
	if versionA == nil || versionB == nil {
		return ErrMissingVariant
	}

	cfg := b.AbTest
	duration := cfg.TestDurationHours
	if duration <= 0 {
		duration = defaultTestDurationHours
	}
	winnerCheckAt := time.Now().Add(time.Duration(duration) * time.Hour)

	groupA, groupB, _ := SplitAudience(contacts, cfg)

	if err := bw.DB.Model(b).Updates(map[string]interface{}{
		"status":           models.BroadcastStatusTesting,
		"started_at":       time.Now(),
		"total_recipients": len(contacts),
		"next_action_at":   winnerCheckAt,
	}).Error; err != nil {
		return fmt.Errorf("failed to mark broadcast testing: %w", err)
	}

	sentA, failedA := bw.dispatchSlice(ctx, b, versionA, spec, groupA)
	sentB, failedB := bw.dispatchSlice(ctx, b, versionB, spec, groupB)

	logrus.WithFields(logrus.Fields{
		"broadcast_id":    b.ID,
		"variant_a_sent":  sentA,
		"variant_b_sent":  sentB,
		"failed":          failedA + failedB,
		"winner_check_at": winnerCheckAt,
	}).Info("A/B test started")
	return nil
}

// VariantScorer is the pluggable engagement scoring seam. Score returns
// the variant's score and whether enough data exists to trust it.
// Implementations must be deterministic for the same inputs.
type VariantScorer interface {
	Score(b *models.Broadcast, v *models.ContentVersion) (float64, bool)
}

// OpenRateScorer scores a variant by open rate from the per-variant
// counters. A variant with no sends has no signal.
type OpenRateScorer struct{}

func (OpenRateScorer) Score(_ *models.Broadcast, v *models.ContentVersion) (float64, bool) {
	if v == nil || v.SentCount == 0 {
		return 0, false
	}
	return float64(v.OpenCount) / float64(v.SentCount), true
}

// pickWinner chooses the variant to send to the remaining slice. SMS
// has no open-rate signal, so variant A wins deterministically. For
// email, variant B must strictly outscore A with trusted data on both
// sides; ties and missing data fall back to A.
func (bw *BroadcastWorker) pickWinner(b *models.Broadcast) string {
	if b.Channel == models.ChannelSMS {
		return models.VariantA
	}

	scoreA, okA := bw.Scorer.Score(b, b.VersionFor(models.VariantA))
	scoreB, okB := bw.Scorer.Score(b, b.VersionFor(models.VariantB))
	if okA && okB && scoreB > scoreA {
		return models.VariantB
	}
	return models.VariantA
}

// processWinnerCheck runs the testing → sending → sent transition. The
// audience is re-resolved rather than cached so unsubscribes since the
// test started are re-checked; the already-tested slice is skipped by
// recomputing the test size with the same floor arithmetic. Counters
// accumulate on top of the test-phase counts.
func (bw *BroadcastWorker) processWinnerCheck(ctx context.Context, b *models.Broadcast) error {
	winner := bw.pickWinner(b)

	version := b.VersionFor(winner)
	if version == nil {
		return ErrMissingVariant
	}

	// Record the decision before the final send.
	cfg := *b.AbTest
	cfg.WinnerVariant = winner
	b.AbTest = &cfg

	spec, err := utils.ParseAudienceSpec(b.AudienceSpec, b.Type)
	if err != nil {
		return fmt.Errorf("parsing audience spec: %w", err)
	}
	contacts, err := bw.Resolver.Resolve(b.UserID, spec, b.Channel)
	if err != nil {
		return err
	}

	testSize := len(contacts) * cfg.TestSizePercentage / 100
	if testSize > len(contacts) {
		testSize = len(contacts)
	}
	remaining := contacts[testSize:]

	if err := bw.DB.Model(b).Updates(map[string]interface{}{
		"status":           models.BroadcastStatusSending,
		"ab_test":          b.AbTest,
		"total_recipients": gorm.Expr("sent_count + failed_count + ?", len(remaining)),
		"next_action_at":   nil,
	}).Error; err != nil {
		return fmt.Errorf("failed to mark broadcast sending: %w", err)
	}

	sent, failed := bw.dispatchSlice(ctx, b, version, spec, remaining)

	if err := bw.DB.Model(b).Updates(map[string]interface{}{
		"status":       models.BroadcastStatusSent,
		"completed_at": time.Now(),
	}).Error; err != nil {
		return fmt.Errorf("failed to mark broadcast sent: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"broadcast_id": b.ID,
		"winner":       winner,
		"sent":         sent,
		"failed":       failed,
	}).Info("A/B winner sent")
	return nil
}
