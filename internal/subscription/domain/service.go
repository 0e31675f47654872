package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DueSubscription is one organization due for a refill, joined to its plan.
type DueSubscription struct {
	OrgID          snowflake.ID `json:"org_id"`
	SubscriptionID snowflake.ID `json:"subscription_id"`
	PlanID         snowflake.ID `json:"plan_id"`
	PlanName       string       `json:"plan_name"`
	MonthlyCredits int64        `json:"monthly_credits"`
	NextRefillAt   time.Time    `json:"next_refill_at"`
}

type StartSubscriptionRequest struct {
	OrgID   string
	PlanID  string
	StartAt time.Time
}

type Service interface {
	// Start activates a subscription from INACTIVE or CANCELLED with a fresh
	// plan, start date and next refill date one month after the start.
	Start(ctx context.Context, req StartSubscriptionRequest) (*Subscription, error)
	Pause(ctx context.Context, orgID string) (*Subscription, error)
	Resume(ctx context.Context, orgID string) (*Subscription, error)
	Cancel(ctx context.Context, orgID string) (*Subscription, error)
	GetByOrgID(ctx context.Context, orgID string) (*Subscription, error)
	ListDueForRefill(ctx context.Context, asOf time.Time, limit int) ([]DueSubscription, error)
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidStartAt       = errors.New("invalid_start_at")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrPlanNotFound         = errors.New("plan_not_found")
	ErrPlanInactive         = errors.New("plan_inactive")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
