package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/governa/internal/clock"
	membershipdomain "github.com/smallbiznis/governa/internal/membership/domain"
	membershiprepo "github.com/smallbiznis/governa/internal/membership/repository"
	membershipservice "github.com/smallbiznis/governa/internal/membership/service"
	"github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	cyclerepo "github.com/smallbiznis/governa/internal/monitoringcycle/repository"
	plandomain "github.com/smallbiznis/governa/internal/monitoringplan/domain"
	planrepo "github.com/smallbiznis/governa/internal/monitoringplan/repository"
	"github.com/smallbiznis/governa/internal/orgcontext"
	pkgrepository "github.com/smallbiznis/governa/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type cycleTestEnv struct {
	db            *gorm.DB
	node          *snowflake.Node
	clock         *clock.FakeClock
	svc           domain.Service
	membershipSvc membershipdomain.Service
	ctx           context.Context
	orgID         snowflake.ID
}

func newCycleTestEnv(t *testing.T) *cycleTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return newCycleTestEnvWithDB(t, db)
}

func newCycleTestEnvWithDB(t *testing.T, db *gorm.DB) *cycleTestEnv {
	t.Helper()

	require.NoError(t, db.AutoMigrate(
		&plandomain.Plan{},
		&plandomain.PlanVersion{},
		&membershipdomain.PlanMembership{},
		&membershipdomain.PlanModelProjection{},
		&domain.MonitoringCycle{},
		&domain.CycleScopeSnapshot{},
	))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_plan_memberships_active_model
		ON plan_memberships (model_id) WHERE effective_to IS NULL`,
	).Error)
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_monitoring_cycles_period
		ON monitoring_cycles (plan_id, period_start, period_end)`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
	orgID := node.Generate()
	log := zap.NewNop()

	svc := NewService(Params{
		DB:             db,
		Log:            log,
		GenID:          node,
		Clock:          fake,
		Repo:           cyclerepo.Provide(),
		PlanRepo:       planrepo.Provide(),
		MembershipRepo: membershiprepo.Provide(),
		Store:          pkgrepository.ProvideStore[domain.MonitoringCycle](db),
	})
	membershipSvc := membershipservice.NewService(membershipservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  membershiprepo.Provide(),
	})

	return &cycleTestEnv{
		db:            db,
		node:          node,
		clock:         fake,
		svc:           svc,
		membershipSvc: membershipSvc,
		ctx:           orgcontext.WithOrgID(context.Background(), orgID),
		orgID:         orgID,
	}
}

func (e *cycleTestEnv) createPlan(t *testing.T, name string) snowflake.ID {
	t.Helper()
	plan := plandomain.Plan{
		ID:        e.node.Generate(),
		OrgID:     e.orgID,
		Name:      name,
		Frequency: plandomain.FrequencyQuarterly,
		Status:    plandomain.PlanStatusActive,
		CreatedAt: e.clock.Now(),
		UpdatedAt: e.clock.Now(),
	}
	require.NoError(t, e.db.Create(&plan).Error)
	return plan.ID
}

func (e *cycleTestEnv) assignModels(t *testing.T, planID snowflake.ID, modelIDs ...snowflake.ID) {
	t.Helper()
	raw := make([]string, 0, len(modelIDs))
	for _, id := range modelIDs {
		raw = append(raw, id.String())
	}
	require.NoError(t, e.membershipSvc.ReplacePlanModels(e.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planID.String(),
		ModelIDs: raw,
	}))
}

func (e *cycleTestEnv) createCycle(t *testing.T, planID snowflake.ID, start, end time.Time) *domain.MonitoringCycle {
	t.Helper()
	cycle, err := e.svc.CreateCycle(e.ctx, domain.CreateCycleRequest{
		PlanID:      planID.String(),
		PeriodStart: start,
		PeriodEnd:   end,
	})
	require.NoError(t, err)
	return cycle
}

func (e *cycleTestEnv) snapshotModelIDs(t *testing.T, cycleID snowflake.ID) []string {
	t.Helper()
	var rows []domain.CycleScopeSnapshot
	require.NoError(t, e.db.Where("cycle_id = ?", cycleID).Order("model_id asc").Find(&rows).Error)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ModelID.String())
	}
	return out
}

func quarter(e *cycleTestEnv) (time.Time, time.Time) {
	start := e.clock.Now().Truncate(24 * time.Hour)
	return start, start.AddDate(0, 3, 0)
}

func TestCreateCycle(t *testing.T) {
	env := newCycleTestEnv(t)
	planID := env.createPlan(t, "pricing models")
	start, end := quarter(env)

	cycle := env.createCycle(t, planID, start, end)
	assert.Equal(t, domain.StatusPending, cycle.Status)
	assert.Nil(t, cycle.PlanVersionID)

	t.Run("duplicate period", func(t *testing.T) {
		_, err := env.svc.CreateCycle(env.ctx, domain.CreateCycleRequest{
			PlanID:      planID.String(),
			PeriodStart: start,
			PeriodEnd:   end,
		})
		require.ErrorIs(t, err, domain.ErrDuplicatePeriod)
	})

	t.Run("inverted period", func(t *testing.T) {
		_, err := env.svc.CreateCycle(env.ctx, domain.CreateCycleRequest{
			PlanID:      planID.String(),
			PeriodStart: end,
			PeriodEnd:   start,
		})
		require.ErrorIs(t, err, domain.ErrInvalidPeriod)
	})

	t.Run("unknown plan", func(t *testing.T) {
		_, err := env.svc.CreateCycle(env.ctx, domain.CreateCycleRequest{
			PlanID:      env.node.Generate().String(),
			PeriodStart: start,
			PeriodEnd:   end,
		})
		require.ErrorIs(t, err, domain.ErrPlanNotFound)
	})
}

func TestStartCycle_FreezesScope(t *testing.T) {
	env := newCycleTestEnv(t)
	planID := env.createPlan(t, "credit risk")
	m1 := env.node.Generate()
	m2 := env.node.Generate()
	env.assignModels(t, planID, m1, m2)

	start, end := quarter(env)
	cycle := env.createCycle(t, planID, start, end)

	resp, err := env.svc.StartCycle(env.ctx, cycle.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDataCollection, resp.Status)
	assert.ElementsMatch(t, []string{m1.String(), m2.String()}, resp.ScopeModels)

	stored, err := env.svc.GetCycle(env.ctx, cycle.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDataCollection, stored.Status)
	require.NotNil(t, stored.PlanVersionID)
	require.NotNil(t, stored.VersionLockedAt)

	assert.ElementsMatch(t, []string{m1.String(), m2.String()}, env.snapshotModelIDs(t, cycle.ID))

	// Snapshot rows all carry the direct ledger source.
	var rows []domain.CycleScopeSnapshot
	require.NoError(t, env.db.Where("cycle_id = ?", cycle.ID).Find(&rows).Error)
	for _, row := range rows {
		assert.Equal(t, domain.ScopeSourceLedgerDirect, row.ScopeSource)
	}
}

func TestStartCycle_EstablishesVersionOne(t *testing.T) {
	env := newCycleTestEnv(t)
	planID := env.createPlan(t, "never published")
	m1 := env.node.Generate()
	env.assignModels(t, planID, m1)

	start, end := quarter(env)
	cycle := env.createCycle(t, planID, start, end)

	_, err := env.svc.StartCycle(env.ctx, cycle.ID.String())
	require.NoError(t, err)

	var versions []plandomain.PlanVersion
	require.NoError(t, env.db.Where("plan_id = ?", planID).Find(&versions).Error)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.JSONEq(t, `["`+m1.String()+`"]`, string(versions[0].ModelSnapshot))

	stored, err := env.svc.GetCycle(env.ctx, cycle.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored.PlanVersionID)
	assert.Equal(t, versions[0].ID, *stored.PlanVersionID)
}

func TestStartCycle_EmptyScope(t *testing.T) {
	env := newCycleTestEnv(t)
	planID := env.createPlan(t, "empty plan")

	start, end := quarter(env)
	cycle := env.createCycle(t, planID, start, end)

	resp, err := env.svc.StartCycle(env.ctx, cycle.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDataCollection, resp.Status)
	assert.Empty(t, resp.ScopeModels)
	assert.Empty(t, env.snapshotModelIDs(t, cycle.ID))
}

func TestStartCycle_NotPending(t *testing.T) {
	env := newCycleTestEnv(t)
	planID := env.createPlan(t, "plan")
	start, end := quarter(env)
	cycle := env.createCycle(t, planID, start, end)

	_, err := env.svc.StartCycle(env.ctx, cycle.ID.String())
	require.NoError(t, err)

	before := env.snapshotModelIDs(t, cycle.ID)
	_, err = env.svc.StartCycle(env.ctx, cycle.ID.String())
	require.ErrorIs(t, err, domain.ErrCycleNotPending)
	assert.Equal(t, before, env.snapshotModelIDs(t, cycle.ID))
}

func TestStartCycle_SnapshotImmutableAfterTransfer(t *testing.T) {
	env := newCycleTestEnv(t)
	planA := env.createPlan(t, "plan a")
	planB := env.createPlan(t, "plan b")
	m1 := env.node.Generate()
	env.assignModels(t, planA, m1)

	start, end := quarter(env)
	cycle := env.createCycle(t, planA, start, end)
	_, err := env.svc.StartCycle(env.ctx, cycle.ID.String())
	require.NoError(t, err)

	// Cycle must finish before the model may leave; approve it, then move.
	for _, target := range []string{domain.StatusUnderReview, domain.StatusPendingApproval, domain.StatusApproved} {
		_, err := env.svc.Transition(env.ctx, domain.TransitionRequest{CycleID: cycle.ID.String(), Target: target})
		require.NoError(t, err)
	}

	env.clock.Advance(time.Hour)
	_, err = env.membershipSvc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
		ModelID:  m1.String(),
		ToPlanID: planB.String(),
	})
	require.NoError(t, err)

	// The frozen scope still names m1 even though the ledger moved on.
	assert.Equal(t, []string{m1.String()}, env.snapshotModelIDs(t, cycle.ID))
}

func TestTransition(t *testing.T) {
	env := newCycleTestEnv(t)
	planID := env.createPlan(t, "plan")
	start, end := quarter(env)
	cycle := env.createCycle(t, planID, start, end)

	t.Run("skip ahead from pending", func(t *testing.T) {
		_, err := env.svc.Transition(env.ctx, domain.TransitionRequest{
			CycleID: cycle.ID.String(),
			Target:  domain.StatusUnderReview,
		})
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("data collection only via start", func(t *testing.T) {
		_, err := env.svc.Transition(env.ctx, domain.TransitionRequest{
			CycleID: cycle.ID.String(),
			Target:  domain.StatusDataCollection,
		})
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := env.svc.Transition(env.ctx, domain.TransitionRequest{
			CycleID: cycle.ID.String(),
			Target:  "ARCHIVED",
		})
		require.ErrorIs(t, err, domain.ErrInvalidStatus)
	})

	_, err := env.svc.StartCycle(env.ctx, cycle.ID.String())
	require.NoError(t, err)

	t.Run("forward path", func(t *testing.T) {
		for _, target := range []string{domain.StatusUnderReview, domain.StatusPendingApproval, domain.StatusApproved} {
			updated, err := env.svc.Transition(env.ctx, domain.TransitionRequest{
				CycleID: cycle.ID.String(),
				Target:  target,
			})
			require.NoError(t, err)
			assert.Equal(t, target, updated.Status)
		}
	})

	t.Run("terminal is final", func(t *testing.T) {
		_, err := env.svc.Transition(env.ctx, domain.TransitionRequest{
			CycleID: cycle.ID.String(),
			Target:  domain.StatusCancelled,
		})
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestTransition_CancelFromAnyActiveStatus(t *testing.T) {
	env := newCycleTestEnv(t)
	planID := env.createPlan(t, "plan")

	start, end := quarter(env)
	for i, advance := range []int{0, 1, 2, 3} {
		cycle := env.createCycle(t, planID, start.AddDate(1+i, 0, 0), end.AddDate(1+i, 0, 0))
		if advance > 0 {
			_, err := env.svc.StartCycle(env.ctx, cycle.ID.String())
			require.NoError(t, err)
			for _, target := range []string{domain.StatusUnderReview, domain.StatusPendingApproval}[:advance-1] {
				_, err := env.svc.Transition(env.ctx, domain.TransitionRequest{CycleID: cycle.ID.String(), Target: target})
				require.NoError(t, err)
			}
		}

		updated, err := env.svc.Transition(env.ctx, domain.TransitionRequest{
			CycleID: cycle.ID.String(),
			Target:  domain.StatusCancelled,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, updated.Status)
	}
}

func TestListCycles(t *testing.T) {
	env := newCycleTestEnv(t)
	planA := env.createPlan(t, "plan a")
	planB := env.createPlan(t, "plan b")

	start, end := quarter(env)
	env.createCycle(t, planA, start, end)
	env.createCycle(t, planB, start, end)

	resp, err := env.svc.ListCycles(env.ctx, domain.ListCyclesRequest{PlanID: planA.String()})
	require.NoError(t, err)
	require.Len(t, resp.Cycles, 1)
	assert.Equal(t, planA, resp.Cycles[0].PlanID)

	resp, err = env.svc.ListCycles(env.ctx, domain.ListCyclesRequest{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Len(t, resp.Cycles, 2)
}

// Transfer a model between plans, then start a cycle on each plan: the old
// plan's cycle sees an empty scope, the new plan's cycle sees the model.
func TestTransferThenStartCycles(t *testing.T) {
	env := newCycleTestEnv(t)
	planA := env.createPlan(t, "plan a")
	planB := env.createPlan(t, "plan b")
	m1 := env.node.Generate()
	env.assignModels(t, planA, m1)

	env.clock.Advance(time.Hour)
	_, err := env.membershipSvc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
		ModelID:  m1.String(),
		ToPlanID: planB.String(),
		Reason:   "reorg",
	})
	require.NoError(t, err)

	start, end := quarter(env)
	cycleA := env.createCycle(t, planA, start, end)
	cycleB := env.createCycle(t, planB, start, end)

	respA, err := env.svc.StartCycle(env.ctx, cycleA.ID.String())
	require.NoError(t, err)
	assert.Empty(t, respA.ScopeModels)

	respB, err := env.svc.StartCycle(env.ctx, cycleB.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []string{m1.String()}, respB.ScopeModels)
}
