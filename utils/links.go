package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// ReviewLinkBuilder generates per-recipient feedback links for
// review-request broadcasts. Failures are treated as best-effort by
// callers: the message falls back to its un-personalized body.
type ReviewLinkBuilder struct {
	BaseURL string
}

func NewReviewLinkBuilder(baseURL string) *ReviewLinkBuilder {
	return &ReviewLinkBuilder{BaseURL: baseURL}
}

// BuildLink returns a review URL for one contact on one platform.
func (b *ReviewLinkBuilder) BuildLink(userID, contactID uint, platform string) (string, error) {
	if b == nil || b.BaseURL == "" {
		return "", fmt.Errorf("review link base URL not configured")
	}
	if platform == "" {
		return "", fmt.Errorf("platform is required")
	}

	token := generateLinkToken(userID, contactID)
	return fmt.Sprintf("%s/r/%d/%d?platform=%s&t=%s",
		b.BaseURL, userID, contactID, url.QueryEscape(platform), token), nil
}

func generateLinkToken(userID, contactID uint) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", uuid.New().String(), userID, contactID)))
	return base64.URLEncoding.EncodeToString(hash[:])[:20]
}
