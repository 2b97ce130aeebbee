package domain

import (
	"time"
)

// Summary is the AI-generated feedback digest for a creator, split into
// the five reporting categories shown on the creator dashboard.
type Summary struct {
	CreatorName         string    `json:"creator_name"`
	WhyViewersWatch     string    `json:"why_viewers_watch"`
	HowToImprove        string    `json:"how_to_improve"`
	ContentProduction   string    `json:"content_production"`
	CommunityManagement string    `json:"community_management"`
	MarketingStrategy   string    `json:"marketing_strategy"`
	GeneratedAt         time.Time `json:"generated_at"`
}
