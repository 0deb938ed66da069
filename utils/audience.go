package utils

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"reachly/models"
)

// Audience spec kinds.
const (
	AudienceKindTagged        = "tagged"
	AudienceKindReviewRequest = "review_request"
)

// AudienceSpec is the decoded form of a broadcast's audience
// specification. Standard broadcasts reference an Audience row;
// review-request broadcasts carry their tags and platform inline.
type AudienceSpec struct {
	Kind       string
	AudienceID uint     // tagged only
	Tags       []string // review_request only; tagged loads them from the Audience row
	Platform   string   // review_request only, passed through to personalization
}

// ParseAudienceSpec decodes the wire form of an audience specification.
// Standard broadcasts store an Audience row id; review requests store
// "tags:<csv>|platform:<name>".
func ParseAudienceSpec(raw, broadcastType string) (*AudienceSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("audience specification is empty")
	}

	if broadcastType == models.BroadcastTypeReviewRequest {
		return parseReviewRequestSpec(raw)
	}

	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid audience reference %q: %w", raw, err)
	}
	return &AudienceSpec{Kind: AudienceKindTagged, AudienceID: uint(id)}, nil
}

func parseReviewRequestSpec(raw string) (*AudienceSpec, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid review-request audience spec %q", raw)
	}
	if !strings.HasPrefix(parts[0], "tags:") || !strings.HasPrefix(parts[1], "platform:") {
		return nil, fmt.Errorf("invalid review-request audience spec %q", raw)
	}

	spec := &AudienceSpec{Kind: AudienceKindReviewRequest}

	csv := strings.TrimPrefix(parts[0], "tags:")
	for _, tag := range strings.Split(csv, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			spec.Tags = append(spec.Tags, tag)
		}
	}

	spec.Platform = strings.TrimSpace(strings.TrimPrefix(parts[1], "platform:"))
	if spec.Platform == "" {
		return nil, fmt.Errorf("review-request audience spec %q has no platform", raw)
	}

	return spec, nil
}

// Encode returns the wire form of the spec.
func (s *AudienceSpec) Encode() string {
	if s.Kind == AudienceKindReviewRequest {
		return fmt.Sprintf("tags:%s|platform:%s", strings.Join(s.Tags, ","), s.Platform)
	}
	return strconv.FormatUint(uint64(s.AudienceID), 10)
}

// AudienceResolver turns an audience specification into a concrete,
// deduplicated list of eligible contacts. It performs no side effects
// and is safe to call repeatedly.
type AudienceResolver struct {
	DB *gorm.DB
}

func NewAudienceResolver(db *gorm.DB) *AudienceResolver {
	return &AudienceResolver{DB: db}
}

// Resolve returns the contacts eligible for a channel: owned by the
// user, not unsubscribed, with a non-empty address for the channel,
// and matching any of the spec's tags (OR-logic). An empty tag list
// means every channel-eligible contact.
func (r *AudienceResolver) Resolve(userID uint, spec *AudienceSpec, channel string) ([]models.Contact, error) {
	tags := spec.Tags
	if spec.Kind == AudienceKindTagged {
		var audience models.Audience
		if err := r.DB.Where("id = ? AND user_id = ?", spec.AudienceID, userID).First(&audience).Error; err != nil {
			return nil, fmt.Errorf("audience %d not found: %w", spec.AudienceID, err)
		}
		tags = audience.FilterTags
	}

	query := r.DB.Model(&models.Contact{}).
		Where("contacts.user_id = ? AND contacts.is_unsubscribed = ?", userID, false)

	switch channel {
	case models.ChannelSMS:
		query = query.Where("contacts.phone IS NOT NULL AND contacts.phone <> ''")
	default:
		query = query.Where("contacts.email IS NOT NULL AND contacts.email <> ''")
	}

	if len(tags) > 0 {
		query = query.
			Joins("JOIN contact_tags ON contact_tags.contact_id = contacts.id AND contact_tags.deleted_at IS NULL").
			Where("contact_tags.tag IN ?", tags)
	}

	var contacts []models.Contact
	if err := query.Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("resolving audience: %w", err)
	}

	// The tag join can yield a row per matching tag; dedupe by id.
	seen := make(map[uint]struct{}, len(contacts))
	deduped := contacts[:0]
	for _, contact := range contacts {
		if _, ok := seen[contact.ID]; ok {
			continue
		}
		seen[contact.ID] = struct{}{}
		deduped = append(deduped, contact)
	}

	return deduped, nil
}
