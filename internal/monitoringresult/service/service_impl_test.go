package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/governa/internal/clock"
	membershipdomain "github.com/smallbiznis/governa/internal/membership/domain"
	cycledomain "github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	cyclerepo "github.com/smallbiznis/governa/internal/monitoringcycle/repository"
	plandomain "github.com/smallbiznis/governa/internal/monitoringplan/domain"
	planrepo "github.com/smallbiznis/governa/internal/monitoringplan/repository"
	"github.com/smallbiznis/governa/internal/monitoringresult/domain"
	resultrepo "github.com/smallbiznis/governa/internal/monitoringresult/repository"
	"github.com/smallbiznis/governa/internal/orgcontext"
	resolverservice "github.com/smallbiznis/governa/internal/scoperesolver/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type resultTestEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service
	ctx   context.Context
	orgID snowflake.ID
}

func newResultTestEnv(t *testing.T) *resultTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&plandomain.Plan{},
		&plandomain.PlanVersion{},
		&membershipdomain.PlanMembership{},
		&membershipdomain.PlanModelProjection{},
		&cycledomain.MonitoringCycle{},
		&cycledomain.CycleScopeSnapshot{},
		&domain.MonitoringResult{},
	))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_monitoring_results_metric
		ON monitoring_results (cycle_id, model_id, metric_key)`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC))
	orgID := node.Generate()
	log := zap.NewNop()

	resolver := resolverservice.NewService(resolverservice.Params{
		DB:         db,
		Log:        log,
		CycleRepo:  cyclerepo.Provide(),
		PlanRepo:   planrepo.Provide(),
		ResultRepo: resultrepo.Provide(),
	})
	svc := NewService(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Repo:      resultrepo.Provide(),
		CycleRepo: cyclerepo.Provide(),
		Resolver:  resolver,
	})

	return &resultTestEnv{
		db:    db,
		node:  node,
		clock: fake,
		svc:   svc,
		ctx:   orgcontext.WithOrgID(context.Background(), orgID),
		orgID: orgID,
	}
}

func (e *resultTestEnv) createCycle(t *testing.T, status string, scopeModels ...snowflake.ID) snowflake.ID {
	t.Helper()
	plan := plandomain.Plan{
		ID:        e.node.Generate(),
		OrgID:     e.orgID,
		Name:      "plan",
		Frequency: plandomain.FrequencyMonthly,
		Status:    plandomain.PlanStatusActive,
		CreatedAt: e.clock.Now(),
		UpdatedAt: e.clock.Now(),
	}
	require.NoError(t, e.db.Create(&plan).Error)

	cycle := cycledomain.MonitoringCycle{
		ID:          e.node.Generate(),
		OrgID:       e.orgID,
		PlanID:      plan.ID,
		PeriodStart: e.clock.Now(),
		PeriodEnd:   e.clock.Now().AddDate(0, 1, 0),
		Status:      status,
		CreatedAt:   e.clock.Now(),
		UpdatedAt:   e.clock.Now(),
	}
	require.NoError(t, e.db.Create(&cycle).Error)

	for _, modelID := range scopeModels {
		require.NoError(t, e.db.Create(&cycledomain.CycleScopeSnapshot{
			CycleID:     cycle.ID,
			ModelID:     modelID,
			LockedAt:    e.clock.Now(),
			ScopeSource: cycledomain.ScopeSourceLedgerDirect,
		}).Error)
	}
	return cycle.ID
}

func TestRecordResult(t *testing.T) {
	env := newResultTestEnv(t)
	m1 := env.node.Generate()
	cycleID := env.createCycle(t, cycledomain.StatusDataCollection, m1)

	value := 0.18
	result, err := env.svc.RecordResult(env.ctx, domain.RecordResultRequest{
		CycleID:      cycleID.String(),
		ModelID:      m1.String(),
		MetricKey:    "psi",
		ValueNumeric: &value,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultStatusRecorded, result.Status)
	require.NotNil(t, result.ValueNumeric)
	assert.Equal(t, value, *result.ValueNumeric)

	results, err := env.svc.ListByCycle(env.ctx, cycleID.String())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "psi", results[0].MetricKey)
}

func TestRecordResult_ModelNotInScope(t *testing.T) {
	env := newResultTestEnv(t)
	m1 := env.node.Generate()
	outsider := env.node.Generate()
	cycleID := env.createCycle(t, cycledomain.StatusDataCollection, m1)

	_, err := env.svc.RecordResult(env.ctx, domain.RecordResultRequest{
		CycleID:   cycleID.String(),
		ModelID:   outsider.String(),
		MetricKey: "psi",
	})
	require.ErrorIs(t, err, domain.ErrModelNotInScope)
}

func TestRecordResult_DuplicateMetric(t *testing.T) {
	env := newResultTestEnv(t)
	m1 := env.node.Generate()
	cycleID := env.createCycle(t, cycledomain.StatusDataCollection, m1)

	req := domain.RecordResultRequest{
		CycleID:   cycleID.String(),
		ModelID:   m1.String(),
		MetricKey: "auc",
	}
	_, err := env.svc.RecordResult(env.ctx, req)
	require.NoError(t, err)

	_, err = env.svc.RecordResult(env.ctx, req)
	require.ErrorIs(t, err, domain.ErrDuplicateResult)

	// A different metric for the same model is fine.
	req.MetricKey = "psi"
	_, err = env.svc.RecordResult(env.ctx, req)
	require.NoError(t, err)
}

func TestRecordResult_CycleNotCollecting(t *testing.T) {
	env := newResultTestEnv(t)
	m1 := env.node.Generate()

	for _, status := range []string{
		cycledomain.StatusPending,
		cycledomain.StatusPendingApproval,
		cycledomain.StatusApproved,
		cycledomain.StatusCancelled,
	} {
		cycleID := env.createCycle(t, status, m1)
		_, err := env.svc.RecordResult(env.ctx, domain.RecordResultRequest{
			CycleID:   cycleID.String(),
			ModelID:   m1.String(),
			MetricKey: "psi",
		})
		require.ErrorIs(t, err, domain.ErrCycleNotCollecting, "status %s", status)
	}

	// UNDER_REVIEW still accepts late results.
	cycleID := env.createCycle(t, cycledomain.StatusUnderReview, m1)
	_, err := env.svc.RecordResult(env.ctx, domain.RecordResultRequest{
		CycleID:   cycleID.String(),
		ModelID:   m1.String(),
		MetricKey: "psi",
	})
	require.NoError(t, err)
}

func TestRecordResult_CycleNotFound(t *testing.T) {
	env := newResultTestEnv(t)
	_, err := env.svc.RecordResult(env.ctx, domain.RecordResultRequest{
		CycleID:   env.node.Generate().String(),
		ModelID:   env.node.Generate().String(),
		MetricKey: "psi",
	})
	require.ErrorIs(t, err, domain.ErrCycleNotFound)
}
