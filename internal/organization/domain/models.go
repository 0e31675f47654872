// Package domain contains persistence models for the organization directory.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrganizationStatus represents the commercial lifecycle of a customer organization.
type OrganizationStatus string

const (
	OrganizationStatusPilot   OrganizationStatus = "PILOT"
	OrganizationStatusActive  OrganizationStatus = "ACTIVE"
	OrganizationStatusChurned OrganizationStatus = "CHURNED"
)

// Organization represents a customer organization. Rows are never deleted,
// only moved between soft states.
type Organization struct {
	ID                 snowflake.ID       `gorm:"primaryKey" json:"id"`
	Name               string             `gorm:"type:text;not null" json:"name"`
	RegistrationNumber *string            `gorm:"type:text;column:registration_number" json:"registration_number,omitempty"`
	Status             OrganizationStatus `gorm:"type:text;not null;index" json:"status"`
	BusinessProfile    string             `gorm:"type:text" json:"business_profile"`
	Metadata           datatypes.JSONMap  `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }
