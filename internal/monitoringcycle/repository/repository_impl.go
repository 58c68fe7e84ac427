package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/monitoringcycle/domain"
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

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cycle *domain.MonitoringCycle) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO monitoring_cycles (
			id, org_id, plan_id, period_start, period_end, status,
			plan_version_id, version_locked_at, version_locked_by,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cycle.ID,
		cycle.OrgID,
		cycle.PlanID,
		cycle.PeriodStart,
		cycle.PeriodEnd,
		cycle.Status,
		cycle.PlanVersionID,
		cycle.VersionLockedAt,
		cycle.VersionLockedBy,
		cycle.CreatedAt,
		cycle.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) (*domain.MonitoringCycle, error) {
	return r.findByID(ctx, db, orgID, cycleID, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID) (*domain.MonitoringCycle, error) {
	return r.findByID(ctx, db, orgID, cycleID, lockSuffix(db))
}

func (r *repo) findByID(ctx context.Context, db *gorm.DB, orgID, cycleID snowflake.ID, suffix string) (*domain.MonitoringCycle, error) {
	var cycles []domain.MonitoringCycle
	query := `SELECT * FROM monitoring_cycles WHERE org_id = ? AND id = ?` + suffix
	if err := db.WithContext(ctx).Raw(query, orgID, cycleID).Scan(&cycles).Error; err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, nil
	}
	return &cycles[0], nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, status string, at time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE monitoring_cycles SET status = ?, updated_at = ? WHERE id = ?`,
		status, at, cycleID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) StampVersion(ctx context.Context, db *gorm.DB, cycleID, versionID snowflake.ID, lockedAt time.Time, lockedBy string) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE monitoring_cycles
		SET status = ?, plan_version_id = ?, version_locked_at = ?, version_locked_by = ?, updated_at = ?
		WHERE id = ?`,
		domain.StatusDataCollection, versionID, lockedAt, lockedBy, lockedAt, cycleID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) InsertSnapshots(ctx context.Context, db *gorm.DB, snapshots []domain.CycleScopeSnapshot) error {
	for _, snap := range snapshots {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO cycle_scope_snapshots (cycle_id, model_id, locked_at, scope_source)
			VALUES (?, ?, ?, ?)`,
			snap.CycleID,
			snap.ModelID,
			snap.LockedAt,
			string(snap.ScopeSource),
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) SnapshotsByCycle(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]domain.CycleScopeSnapshot, error) {
	var snapshots []domain.CycleScopeSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM cycle_scope_snapshots WHERE cycle_id = ? ORDER BY model_id ASC`,
		cycleID,
	).Scan(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
