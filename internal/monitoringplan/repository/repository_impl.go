package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/monitoringplan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func lockSuffix(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO monitoring_plans (
			id, org_id, name, frequency, status, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.OrgID,
		plan.Name,
		plan.Frequency,
		plan.Status,
		plan.CreatedBy,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) (*domain.Plan, error) {
	return r.findByID(ctx, db, orgID, planID, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) (*domain.Plan, error) {
	return r.findByID(ctx, db, orgID, planID, lockSuffix(db))
}

func (r *repo) findByID(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID, suffix string) (*domain.Plan, error) {
	var plans []domain.Plan
	query := `SELECT * FROM monitoring_plans WHERE org_id = ? AND id = ?` + suffix
	if err := db.WithContext(ctx).Raw(query, orgID, planID).Scan(&plans).Error; err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, nil
	}
	return &plans[0], nil
}

func (r *repo) InsertVersion(ctx context.Context, db *gorm.DB, version *domain.PlanVersion) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plan_versions (
			id, org_id, plan_id, version, metric_config, model_snapshot,
			published_by, published_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID,
		version.OrgID,
		version.PlanID,
		version.Version,
		version.MetricConfig,
		version.ModelSnapshot,
		version.PublishedBy,
		version.PublishedAt,
	).Error
}

func (r *repo) LatestVersion(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) (*domain.PlanVersion, error) {
	var versions []domain.PlanVersion
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM plan_versions
		WHERE org_id = ? AND plan_id = ?
		ORDER BY version DESC LIMIT 1`,
		orgID, planID,
	).Scan(&versions).Error
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

func (r *repo) FindVersionByID(ctx context.Context, db *gorm.DB, orgID, versionID snowflake.ID) (*domain.PlanVersion, error) {
	var versions []domain.PlanVersion
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM plan_versions WHERE org_id = ? AND id = ?`,
		orgID, versionID,
	).Scan(&versions).Error
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

func (r *repo) ProjectionModelIDs(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT model_id FROM plan_model_projection WHERE org_id = ? AND plan_id = ? ORDER BY model_id ASC`,
		orgID, planID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
