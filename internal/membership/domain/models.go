// Package domain contains persistence models for the plan membership ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PlanMembership is one interval during which a model belonged to a plan.
// Rows are appended on add/transfer-in and closed on remove/transfer-out;
// they are never deleted and a closed row is never reopened. At any instant a
// model has at most one row with EffectiveTo == nil, across all plans.
type PlanMembership struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	OrgID         snowflake.ID `gorm:"not null;index"`
	ModelID       snowflake.ID `gorm:"not null;index"`
	PlanID        snowflake.ID `gorm:"not null;index"`
	EffectiveFrom time.Time    `gorm:"not null"`
	EffectiveTo   *time.Time   `gorm:""`
	ChangedBy     string       `gorm:"type:text;not null;default:''"`
	Reason        string       `gorm:"type:text;not null;default:''"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlanMembership) TableName() string { return "plan_memberships" }

// PlanModelProjection is the derived "model is currently in plan" fact. It is
// rebuilt from open ledger rows inside every ledger transaction and is never
// written through any other path.
type PlanModelProjection struct {
	PlanID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	ModelID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	OrgID   snowflake.ID `gorm:"not null;index"`
}

// TableName sets the database table name.
func (PlanModelProjection) TableName() string { return "plan_model_projection" }

// CycleRef is the slice of a monitoring cycle the ledger needs when deciding
// whether a transfer out of a plan is allowed.
type CycleRef struct {
	ID     snowflake.ID
	Status string
}
