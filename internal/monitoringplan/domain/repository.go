package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository takes the *gorm.DB it should run on so version establishment can
// participate in a caller's transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) (*Plan, error)

	// FindByIDForUpdate locks the plan row. sqlite skips the lock suffix.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) (*Plan, error)

	InsertVersion(ctx context.Context, db *gorm.DB, version *PlanVersion) error

	// LatestVersion returns the highest-numbered version, or nil when the
	// plan has never been published.
	LatestVersion(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) (*PlanVersion, error)

	FindVersionByID(ctx context.Context, db *gorm.DB, orgID, versionID snowflake.ID) (*PlanVersion, error)

	// ProjectionModelIDs reads the plan's current member set for inclusion in
	// a version snapshot.
	ProjectionModelIDs(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) ([]snowflake.ID, error)
}
