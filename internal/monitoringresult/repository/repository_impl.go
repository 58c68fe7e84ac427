package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/monitoringresult/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, result *domain.MonitoringResult) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO monitoring_results (
			id, org_id, cycle_id, model_id, metric_key, value_numeric,
			status, recorded_by, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID,
		result.OrgID,
		result.CycleID,
		result.ModelID,
		result.MetricKey,
		result.ValueNumeric,
		result.Status,
		result.RecordedBy,
		result.RecordedAt,
	).Error
}

func (r *repo) ListByCycle(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) ([]domain.MonitoringResult, error) {
	var results []domain.MonitoringResult
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM monitoring_results
		WHERE org_id = ? AND cycle_id = ?
		ORDER BY model_id ASC, metric_key ASC`,
		orgID, cycleID,
	).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *repo) DistinctModelIDs(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT model_id FROM monitoring_results WHERE cycle_id = ? ORDER BY model_id ASC`,
		cycleID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
