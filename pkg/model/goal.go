package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

type GoalPeriod string

const (
	PeriodDaily    GoalPeriod = "daily"
	PeriodWeekly   GoalPeriod = "weekly"
	PeriodLongTerm GoalPeriod = "long_term"
)

// Validate checks if the goal period is valid
func (p GoalPeriod) Validate() error {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodLongTerm:
		return nil
	default:
		return goerr.New("invalid goal period", goerr.V("period", p))
	}
}

// Goal is a user target for one metric. At most one goal is active per
// (user, metric) pair; setting a new goal for the same metric replaces the
// prior one. The uniqueness is enforced by the repository, which keys the
// stored document on (user, metric).
type Goal struct {
	UserID    UserID     `firestore:"user_id" json:"user_id"`
	Metric    MetricKind `firestore:"metric" json:"metric"`
	Target    float64    `firestore:"target" json:"target"`
	Period    GoalPeriod `firestore:"period" json:"period"`
	CreatedAt time.Time  `firestore:"created_at" json:"created_at"`
}

// Validate checks the goal invariants
func (g *Goal) Validate() error {
	if g.UserID == "" {
		return goerr.New("goal user is empty")
	}
	if g.Target <= 0 {
		return goerr.New("goal target must be positive", goerr.V("target", g.Target))
	}
	if err := g.Metric.Validate(); err != nil {
		return err
	}
	return g.Period.Validate()
}
