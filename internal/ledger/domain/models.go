// Package domain contains persistence models for the credit ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntry is one immutable, signed credit movement. Positive amounts are
// grants or top-ups, negative amounts are consumption. Rows are never updated
// or deleted; the organization balance is always derived by summing them.
type LedgerEntry struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID  `gorm:"not null;index" json:"org_id"`
	Amount      int64         `gorm:"not null" json:"amount"`
	Description string        `gorm:"type:text;not null" json:"description"`
	ProjectID   *snowflake.ID `gorm:"index" json:"project_id,omitempty"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }
