package repository

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/membership/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// sqlite has no FOR UPDATE; its single-writer transactions give the same
// guarantee for the in-memory test databases.
func lockSuffix(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

func (r *repo) LockPlans(ctx context.Context, db *gorm.DB, orgID snowflake.ID, planIDs []snowflake.ID) ([]snowflake.ID, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}

	sorted := make([]snowflake.ID, len(planIDs))
	copy(sorted, planIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var found []snowflake.ID
	query := `SELECT id FROM monitoring_plans WHERE org_id = ? AND id IN ? ORDER BY id ASC` + lockSuffix(db)
	if err := db.WithContext(ctx).Raw(query, orgID, sorted).Scan(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repo) ActiveByPlanForUpdate(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) ([]domain.PlanMembership, error) {
	var rows []domain.PlanMembership
	query := `SELECT * FROM plan_memberships
		WHERE org_id = ? AND plan_id = ? AND effective_to IS NULL
		ORDER BY model_id ASC` + lockSuffix(db)
	if err := db.WithContext(ctx).Raw(query, orgID, planID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ActiveByModelForUpdate(ctx context.Context, db *gorm.DB, orgID, modelID snowflake.ID) (*domain.PlanMembership, error) {
	var rows []domain.PlanMembership
	query := `SELECT * FROM plan_memberships
		WHERE org_id = ? AND model_id = ? AND effective_to IS NULL` + lockSuffix(db)
	if err := db.WithContext(ctx).Raw(query, orgID, modelID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) ActiveByModel(ctx context.Context, db *gorm.DB, orgID, modelID snowflake.ID) (*domain.PlanMembership, error) {
	var rows []domain.PlanMembership
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM plan_memberships WHERE org_id = ? AND model_id = ? AND effective_to IS NULL`,
		orgID, modelID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *domain.PlanMembership) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plan_memberships (
			id, org_id, model_id, plan_id, effective_from, effective_to,
			changed_by, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.OrgID,
		rec.ModelID,
		rec.PlanID,
		rec.EffectiveFrom,
		rec.EffectiveTo,
		rec.ChangedBy,
		rec.Reason,
		rec.CreatedAt,
	).Error
}

func (r *repo) Close(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE plan_memberships SET effective_to = ? WHERE id = ? AND effective_to IS NULL`,
		at, id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) RebuildProjection(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM plan_model_projection WHERE org_id = ? AND plan_id = ?`,
		orgID, planID,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO plan_model_projection (plan_id, model_id, org_id)
		SELECT plan_id, model_id, org_id FROM plan_memberships
		WHERE org_id = ? AND plan_id = ? AND effective_to IS NULL`,
		orgID, planID,
	).Error
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

func (r *repo) FindBlockingCycle(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID, statuses []string) (*domain.CycleRef, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var refs []domain.CycleRef
	err := db.WithContext(ctx).Raw(
		`SELECT id, status FROM monitoring_cycles
		WHERE org_id = ? AND plan_id = ? AND status IN ?
		ORDER BY id ASC LIMIT 1`,
		orgID, planID, statuses,
	).Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return &refs[0], nil
}

func (r *repo) PlanExists(ctx context.Context, db *gorm.DB, orgID, planID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM monitoring_plans WHERE org_id = ? AND id = ?`,
		orgID, planID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
