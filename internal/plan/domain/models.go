// Package domain contains persistence models for the plan catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Plan is a catalog entry defining the monthly credit grant for a subscription.
// Plans referenced by a subscription cannot be deleted, only deactivated.
type Plan struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	MonthlyCredits int64        `gorm:"not null" json:"monthly_credits"`
	PriceCents     *int64       `gorm:"column:price_cents" json:"price_cents,omitempty"`
	Active         bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }
