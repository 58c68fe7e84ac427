// Package domain contains monitoring cycle models and the scope snapshot.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusPending         = "PENDING"
	StatusDataCollection  = "DATA_COLLECTION"
	StatusUnderReview     = "UNDER_REVIEW"
	StatusPendingApproval = "PENDING_APPROVAL"
	StatusApproved        = "APPROVED"
	StatusCancelled       = "CANCELLED"
)

// ScopeSource names the signal a cycle's model set was derived from.
type ScopeSource string

// Scope sources, in fallback order. ledger_direct is the only value written
// by StartCycle; the rest name the signal a resolver fell back to.
const (
	ScopeSourceLedgerDirect       ScopeSource = "ledger_direct"
	ScopeSourceVersionSnapshot    ScopeSource = "version_snapshot"
	ScopeSourceResultEvidence     ScopeSource = "result_evidence"
	ScopeSourceMembershipFallback ScopeSource = "membership_fallback"
)

// TransferBlockingStatuses are the cycle statuses during which models may not
// leave the cycle's plan.
func TransferBlockingStatuses() []string {
	return []string{StatusDataCollection, StatusUnderReview, StatusPendingApproval}
}

// IsTerminal reports whether a cycle can never change status again.
func IsTerminal(status string) bool {
	return status == StatusApproved || status == StatusCancelled
}

// allowedTransitions is the forward path plus cancellation from any
// non-terminal status.
var allowedTransitions = map[string][]string{
	StatusPending:         {StatusDataCollection, StatusCancelled},
	StatusDataCollection:  {StatusUnderReview, StatusCancelled},
	StatusUnderReview:     {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval: {StatusApproved, StatusCancelled},
}

// CanTransition reports whether the status change is legal.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type MonitoringCycle struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	OrgID           snowflake.ID  `gorm:"not null;index"`
	PlanID          snowflake.ID  `gorm:"not null;index"`
	PeriodStart     time.Time     `gorm:"not null"`
	PeriodEnd       time.Time     `gorm:"not null"`
	Status          string        `gorm:"type:text;not null;default:'PENDING'"`
	PlanVersionID   *snowflake.ID `gorm:""`
	VersionLockedAt *time.Time    `gorm:""`
	VersionLockedBy *string       `gorm:"type:text"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MonitoringCycle) TableName() string { return "monitoring_cycles" }

// CycleScopeSnapshot is written exactly once, when the cycle enters data
// collection. There is no update or delete path.
type CycleScopeSnapshot struct {
	CycleID     snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	ModelID     snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	LockedAt    time.Time    `gorm:"not null"`
	ScopeSource ScopeSource  `gorm:"type:text;not null"`
}

// TableName sets the database table name.
func (CycleScopeSnapshot) TableName() string { return "cycle_scope_snapshots" }
