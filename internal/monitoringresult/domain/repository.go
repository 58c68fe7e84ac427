package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, result *MonitoringResult) error
	ListByCycle(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) ([]MonitoringResult, error)

	// DistinctModelIDs returns the models with at least one recorded result
	// for the cycle, in ascending id order.
	DistinctModelIDs(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]snowflake.ID, error)
}
