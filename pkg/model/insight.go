package model

import "time"

// InsightTier is the priority tier an insight was selected from. Lower
// tiers win: a goal near-miss always beats a positive trend.
type InsightTier string

const (
	TierGoalNearMiss  InsightTier = "goal_near_miss"
	TierNegativeTrend InsightTier = "negative_trend"
	TierGoalsMet      InsightTier = "goals_met"
	TierPositiveTrend InsightTier = "positive_trend"
	TierDefault       InsightTier = "default"
)

// Insight is a single derived sentence for the dashboard. It is recomputed
// on demand and never stored as source of truth.
type Insight struct {
	Text        string      `json:"text"`
	Tier        InsightTier `json:"tier"`
	GeneratedAt time.Time   `json:"generated_at"`
}
