package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cycle *MonitoringCycle) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) (*MonitoringCycle, error)

	// FindByIDForUpdate locks the cycle row. sqlite skips the lock suffix.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) (*MonitoringCycle, error)

	UpdateStatus(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, status string, at time.Time) error

	// StampVersion records the frozen plan version and advances the cycle to
	// data collection in one statement.
	StampVersion(ctx context.Context, db *gorm.DB, cycleID, versionID snowflake.ID, lockedAt time.Time, lockedBy string) error

	InsertSnapshots(ctx context.Context, db *gorm.DB, snapshots []CycleScopeSnapshot) error
	SnapshotsByCycle(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]CycleScopeSnapshot, error)
}
