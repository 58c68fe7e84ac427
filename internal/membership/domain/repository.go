package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the raw SQL surface of the membership ledger. Every method
// takes the *gorm.DB it should run on so callers control transaction scope.
type Repository interface {
	// LockPlans takes row locks on the given plans in ascending id order and
	// returns the ids that exist. Plan locks are always acquired before any
	// membership lock.
	LockPlans(ctx context.Context, db *gorm.DB, orgID snowflake.ID, planIDs []snowflake.ID) ([]snowflake.ID, error)

	// ActiveByPlanForUpdate locks and returns the plan's open ledger rows in
	// ascending model id order.
	ActiveByPlanForUpdate(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) ([]PlanMembership, error)

	// ActiveByModelForUpdate locks and returns the model's open ledger row,
	// or nil when the model is unassigned.
	ActiveByModelForUpdate(ctx context.Context, db *gorm.DB, orgID, modelID snowflake.ID) (*PlanMembership, error)

	ActiveByModel(ctx context.Context, db *gorm.DB, orgID, modelID snowflake.ID) (*PlanMembership, error)

	Insert(ctx context.Context, db *gorm.DB, rec *PlanMembership) error

	// Close stamps effective_to on an open ledger row.
	Close(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	// RebuildProjection replaces the plan's projection rows with the current
	// open ledger rows. Must run inside the transaction that changed them.
	RebuildProjection(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) error

	ProjectionModelIDs(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) ([]snowflake.ID, error)

	// FindBlockingCycle returns a cycle on the plan whose status is in the
	// given set, or nil.
	FindBlockingCycle(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID, statuses []string) (*CycleRef, error)

	PlanExists(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) (bool, error)
}
