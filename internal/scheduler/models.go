package scheduler

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ExecutionStatusSuccess        = "success"
	ExecutionStatusPartialFailure = "partial_failure"
	ExecutionStatusFailure        = "failure"
)

// RefillExecution is the immutable audit record of one refill run.
type RefillExecution struct {
	ID                     snowflake.ID   `gorm:"column:id;primaryKey" json:"id,string"`
	ExecutedAt             time.Time      `gorm:"column:executed_at" json:"executed_at"`
	OrganizationsProcessed int            `gorm:"column:organizations_processed" json:"organizations_processed"`
	CreditsAdded           int64          `gorm:"column:credits_added" json:"credits_added"`
	Status                 string         `gorm:"column:status" json:"status"`
	DurationMs             int64          `gorm:"column:duration_ms" json:"duration_ms"`
	ErrorSummary           *string        `gorm:"column:error_summary" json:"error_summary,omitempty"`
	ErrorDetails           datatypes.JSON `gorm:"column:error_details" json:"error_details,omitempty"`
}

func (RefillExecution) TableName() string {
	return "refill_executions"
}

// orgFailure is one failed organization inside a run, kept in ErrorDetails.
type orgFailure struct {
	OrgID          string `json:"org_id"`
	SubscriptionID string `json:"subscription_id"`
	Error          string `json:"error"`
}
