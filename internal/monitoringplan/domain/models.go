// Package domain contains monitoring plan models and version snapshots.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	PlanStatusActive   = "ACTIVE"
	PlanStatusArchived = "ARCHIVED"
)

const (
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyAnnual    = "annual"
)

type Plan struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Frequency string       `gorm:"type:text;not null;default:'monthly'" json:"frequency"`
	Status    string       `gorm:"type:text;not null;default:'ACTIVE'" json:"status"`
	CreatedBy string       `gorm:"type:text;not null;default:''" json:"created_by"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "monitoring_plans" }

// PlanVersion is an immutable snapshot of the plan's metric configuration,
// optionally including the member list at publication time. Versions are
// numbered per plan starting at 1.
type PlanVersion struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID      `gorm:"not null;index" json:"org_id"`
	PlanID        snowflake.ID      `gorm:"not null;index" json:"plan_id"`
	Version       int               `gorm:"not null" json:"version"`
	MetricConfig  datatypes.JSONMap `gorm:"type:jsonb" json:"metric_config"`
	ModelSnapshot datatypes.JSON    `gorm:"type:jsonb" json:"model_snapshot,omitempty"`
	PublishedBy   string            `gorm:"type:text;not null;default:''" json:"published_by"`
	PublishedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"published_at"`
}

// TableName sets the database table name.
func (PlanVersion) TableName() string { return "plan_versions" }
