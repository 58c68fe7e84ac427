// Package domain contains the monitored model inventory entity.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ModelStatusActive  = "ACTIVE"
	ModelStatusRetired = "RETIRED"
)

type Model struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Owner     string       `gorm:"type:text;not null;default:''" json:"owner"`
	Tier      string       `gorm:"type:text;not null;default:''" json:"tier"`
	Status    string       `gorm:"type:text;not null;default:'ACTIVE'" json:"status"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Model) TableName() string { return "monitored_models" }
