// Package domain contains per-cycle metric result models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const ResultStatusRecorded = "RECORDED"

type MonitoringResult struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index" json:"org_id"`
	CycleID      snowflake.ID `gorm:"not null;index" json:"cycle_id"`
	ModelID      snowflake.ID `gorm:"not null" json:"model_id"`
	MetricKey    string       `gorm:"type:text;not null" json:"metric_key"`
	ValueNumeric *float64     `gorm:"" json:"value_numeric,omitempty"`
	Status       string       `gorm:"type:text;not null;default:'RECORDED'" json:"status"`
	RecordedBy   string       `gorm:"type:text;not null;default:''" json:"recorded_by"`
	RecordedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"recorded_at"`
}

// TableName sets the database table name.
func (MonitoringResult) TableName() string { return "monitoring_results" }
