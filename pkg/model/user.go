package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

type UserID string

type SubscriptionTier string

const (
	TierFree SubscriptionTier = "free"
	TierPlus SubscriptionTier = "plus"
)

// Validate checks if the subscription tier is valid
func (t SubscriptionTier) Validate() error {
	switch t {
	case TierFree, TierPlus:
		return nil
	default:
		return goerr.New("invalid subscription tier", goerr.V("tier", t))
	}
}

// Profile holds the per-user context injected into the agent's system prompt
type Profile struct {
	ID          UserID           `firestore:"id" json:"id"`
	DisplayName string           `firestore:"display_name" json:"display_name"`
	Tier        SubscriptionTier `firestore:"tier" json:"tier"`
	Timezone    string           `firestore:"timezone" json:"timezone"`
	CreatedAt   time.Time        `firestore:"created_at" json:"created_at"`
}
