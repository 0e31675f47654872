// Package domain contains persistence models for subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusInactive  SubscriptionStatus = "INACTIVE"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused    SubscriptionStatus = "PAUSED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription is the per-organization subscription record, one row per
// organization. NextRefillAt is set only while the subscription is active
// and only ever moves forward in whole months, except when an explicit
// start resets it.
type Subscription struct {
	ID           snowflake.ID       `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID       `gorm:"not null;uniqueIndex:ux_subscriptions_org" json:"org_id"`
	PlanID       *snowflake.ID      `gorm:"index" json:"plan_id,omitempty"`
	Status       SubscriptionStatus `gorm:"type:text;not null;index" json:"status"`
	StartAt      *time.Time         `json:"start_at,omitempty"`
	NextRefillAt *time.Time         `gorm:"column:next_refill_at;index" json:"next_refill_at,omitempty"`
	PausedAt     *time.Time         `json:"paused_at,omitempty"`
	ResumedAt    *time.Time         `json:"resumed_at,omitempty"`
	CancelledAt  *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
