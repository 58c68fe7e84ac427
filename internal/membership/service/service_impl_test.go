package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/governa/internal/clock"
	membershipdomain "github.com/smallbiznis/governa/internal/membership/domain"
	"github.com/smallbiznis/governa/internal/membership/repository"
	cycledomain "github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	plandomain "github.com/smallbiznis/governa/internal/monitoringplan/domain"
	"github.com/smallbiznis/governa/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   membershipdomain.Service
	ctx   context.Context
	orgID snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&plandomain.Plan{},
		&membershipdomain.PlanMembership{},
		&membershipdomain.PlanModelProjection{},
		&cycledomain.MonitoringCycle{},
	))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_plan_memberships_active_model
		ON plan_memberships (model_id) WHERE effective_to IS NULL`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	orgID := node.Generate()

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})

	return &testEnv{
		db:    db,
		node:  node,
		clock: fake,
		svc:   svc,
		ctx:   orgcontext.WithOrgID(context.Background(), orgID),
		orgID: orgID,
	}
}

func (e *testEnv) createPlan(t *testing.T, name string) snowflake.ID {
	t.Helper()
	plan := plandomain.Plan{
		ID:        e.node.Generate(),
		OrgID:     e.orgID,
		Name:      name,
		Frequency: plandomain.FrequencyMonthly,
		Status:    plandomain.PlanStatusActive,
		CreatedAt: e.clock.Now(),
		UpdatedAt: e.clock.Now(),
	}
	require.NoError(t, e.db.Create(&plan).Error)
	return plan.ID
}

func (e *testEnv) createCycle(t *testing.T, planID snowflake.ID, status string) snowflake.ID {
	t.Helper()
	cycle := cycledomain.MonitoringCycle{
		ID:          e.node.Generate(),
		OrgID:       e.orgID,
		PlanID:      planID,
		PeriodStart: e.clock.Now(),
		PeriodEnd:   e.clock.Now().AddDate(0, 1, 0),
		Status:      status,
		CreatedAt:   e.clock.Now(),
		UpdatedAt:   e.clock.Now(),
	}
	require.NoError(t, e.db.Create(&cycle).Error)
	return cycle.ID
}

func (e *testEnv) openLedgerRows(t *testing.T, modelID snowflake.ID) []membershipdomain.PlanMembership {
	t.Helper()
	var rows []membershipdomain.PlanMembership
	require.NoError(t, e.db.
		Where("model_id = ? AND effective_to IS NULL", modelID).
		Find(&rows).Error)
	return rows
}

func (e *testEnv) ledgerCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&membershipdomain.PlanMembership{}).Count(&count).Error)
	return count
}

func TestReplacePlanModels_AssignsModels(t *testing.T) {
	env := newTestEnv(t)
	planID := env.createPlan(t, "tier-1 quarterly")
	m1 := env.node.Generate()
	m2 := env.node.Generate()

	err := env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planID.String(),
		ModelIDs: []string{m1.String(), m2.String()},
		Reason:   "initial scoping",
	})
	require.NoError(t, err)

	ids, err := env.svc.ActiveModelIDs(env.ctx, planID.String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m1.String(), m2.String()}, ids)

	assert.Len(t, env.openLedgerRows(t, m1), 1)
	assert.Len(t, env.openLedgerRows(t, m2), 1)
}

func TestReplacePlanModels_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	planID := env.createPlan(t, "credit models")
	m1 := env.node.Generate()

	req := membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planID.String(),
		ModelIDs: []string{m1.String()},
	}
	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, req))

	before := env.ledgerCount(t)
	rowsBefore := env.openLedgerRows(t, m1)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, req))

	assert.Equal(t, before, env.ledgerCount(t), "identical call must write nothing")
	rowsAfter := env.openLedgerRows(t, m1)
	require.Len(t, rowsAfter, 1)
	assert.Equal(t, rowsBefore[0].ID, rowsAfter[0].ID)
	assert.Nil(t, rowsAfter[0].EffectiveTo)
}

func TestReplacePlanModels_SymmetricDiff(t *testing.T) {
	env := newTestEnv(t)
	planID := env.createPlan(t, "market risk")
	m1 := env.node.Generate()
	m2 := env.node.Generate()
	m3 := env.node.Generate()

	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planID.String(),
		ModelIDs: []string{m1.String(), m2.String()},
	}))

	env.clock.Advance(time.Hour)
	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planID.String(),
		ModelIDs: []string{m2.String(), m3.String()},
	}))

	ids, err := env.svc.ActiveModelIDs(env.ctx, planID.String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m2.String(), m3.String()}, ids)

	// m1's row is closed, never deleted.
	var closed []membershipdomain.PlanMembership
	require.NoError(t, env.db.
		Where("model_id = ? AND effective_to IS NOT NULL", m1).
		Find(&closed).Error)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].EffectiveTo.After(closed[0].EffectiveFrom))

	// m2 kept its original open row.
	assert.Len(t, env.openLedgerRows(t, m2), 1)
}

func TestReplacePlanModels_RejectsModelAssignedElsewhere(t *testing.T) {
	env := newTestEnv(t)
	planA := env.createPlan(t, "plan a")
	planB := env.createPlan(t, "plan b")
	m1 := env.node.Generate()

	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planA.String(),
		ModelIDs: []string{m1.String()},
	}))

	err := env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planB.String(),
		ModelIDs: []string{m1.String()},
	})
	require.ErrorIs(t, err, membershipdomain.ErrModelAssignedElsewhere)

	// Aborted transaction: plan B has no members, m1 still active in A.
	ids, err := env.svc.ActiveModelIDs(env.ctx, planB.String())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Len(t, env.openLedgerRows(t, m1), 1)
}

func TestReplacePlanModels_PlanNotFound(t *testing.T) {
	env := newTestEnv(t)
	err := env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   env.node.Generate().String(),
		ModelIDs: []string{env.node.Generate().String()},
	})
	require.ErrorIs(t, err, membershipdomain.ErrPlanNotFound)
}

func TestTransferModel_MovesActiveAssignment(t *testing.T) {
	env := newTestEnv(t)
	planA := env.createPlan(t, "plan a")
	planB := env.createPlan(t, "plan b")
	m1 := env.node.Generate()

	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planA.String(),
		ModelIDs: []string{m1.String()},
	}))

	env.clock.Advance(time.Minute)
	resp, err := env.svc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
		ModelID:  m1.String(),
		ToPlanID: planB.String(),
		Reason:   "ownership moved",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.FromPlanID)
	assert.Equal(t, planA.String(), *resp.FromPlanID)
	assert.Equal(t, planB.String(), resp.ToPlanID)

	idsA, err := env.svc.ActiveModelIDs(env.ctx, planA.String())
	require.NoError(t, err)
	assert.Empty(t, idsA)

	idsB, err := env.svc.ActiveModelIDs(env.ctx, planB.String())
	require.NoError(t, err)
	assert.Equal(t, []string{m1.String()}, idsB)

	// Exactly one open row, ever.
	assert.Len(t, env.openLedgerRows(t, m1), 1)
}

func TestTransferModel_NoOpWhenAlreadyInTarget(t *testing.T) {
	env := newTestEnv(t)
	planA := env.createPlan(t, "plan a")
	m1 := env.node.Generate()

	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planA.String(),
		ModelIDs: []string{m1.String()},
	}))
	before := env.ledgerCount(t)
	rowBefore := env.openLedgerRows(t, m1)[0]

	resp, err := env.svc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
		ModelID:  m1.String(),
		ToPlanID: planA.String(),
	})
	require.NoError(t, err)
	require.NotNil(t, resp.FromPlanID)
	assert.Equal(t, planA.String(), *resp.FromPlanID)
	assert.Equal(t, planA.String(), resp.ToPlanID)

	assert.Equal(t, before, env.ledgerCount(t), "no-op transfer must write nothing")
	assert.Equal(t, rowBefore.ID, env.openLedgerRows(t, m1)[0].ID)
}

func TestTransferModel_UnassignedModel(t *testing.T) {
	env := newTestEnv(t)
	planA := env.createPlan(t, "plan a")
	m1 := env.node.Generate()

	resp, err := env.svc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
		ModelID:  m1.String(),
		ToPlanID: planA.String(),
	})
	require.NoError(t, err)
	assert.Nil(t, resp.FromPlanID)
	assert.Equal(t, planA.String(), resp.ToPlanID)
	assert.Len(t, env.openLedgerRows(t, m1), 1)
}

func TestTransferModel_TargetPlanNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
		ModelID:  env.node.Generate().String(),
		ToPlanID: env.node.Generate().String(),
	})
	require.ErrorIs(t, err, membershipdomain.ErrPlanNotFound)
}

func TestTransferModel_BlockedByStartedCycle(t *testing.T) {
	env := newTestEnv(t)
	planA := env.createPlan(t, "plan a")
	planB := env.createPlan(t, "plan b")
	m1 := env.node.Generate()

	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planA.String(),
		ModelIDs: []string{m1.String()},
	}))

	for _, status := range []string{
		cycledomain.StatusDataCollection,
		cycledomain.StatusUnderReview,
		cycledomain.StatusPendingApproval,
	} {
		env2 := newTestEnv(t)
		pA := env2.createPlan(t, "plan a")
		pB := env2.createPlan(t, "plan b")
		model := env2.node.Generate()
		require.NoError(t, env2.svc.ReplacePlanModels(env2.ctx, membershipdomain.ReplacePlanModelsRequest{
			PlanID:   pA.String(),
			ModelIDs: []string{model.String()},
		}))
		env2.createCycle(t, pA, status)

		_, err := env2.svc.TransferModel(env2.ctx, membershipdomain.TransferModelRequest{
			ModelID:  model.String(),
			ToPlanID: pB.String(),
		})
		require.ErrorIs(t, err, membershipdomain.ErrTransferBlocked, "status %s must block", status)

		var blocked *membershipdomain.TransferBlockedError
		require.True(t, errors.As(err, &blocked))
		assert.Equal(t, status, blocked.CycleStatus)

		// Membership untouched.
		ids, err := env2.svc.ActiveModelIDs(env2.ctx, pA.String())
		require.NoError(t, err)
		assert.Equal(t, []string{model.String()}, ids)
	}

	// Cycle on the target plan does not block.
	env.createCycle(t, planB, cycledomain.StatusDataCollection)
	_, err := env.svc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
		ModelID:  m1.String(),
		ToPlanID: planB.String(),
	})
	require.NoError(t, err)
}

func TestTransferModel_AllowedWhenCyclesPendingOrTerminal(t *testing.T) {
	env := newTestEnv(t)
	planA := env.createPlan(t, "plan a")
	planB := env.createPlan(t, "plan b")
	m1 := env.node.Generate()

	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planA.String(),
		ModelIDs: []string{m1.String()},
	}))

	env.createCycle(t, planA, cycledomain.StatusPending)
	env.createCycle(t, planA, cycledomain.StatusApproved)
	env.createCycle(t, planA, cycledomain.StatusCancelled)

	resp, err := env.svc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
		ModelID:  m1.String(),
		ToPlanID: planB.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, planB.String(), resp.ToPlanID)
}

func TestLedger_AtMostOneActiveRowPerModel(t *testing.T) {
	env := newTestEnv(t)
	planA := env.createPlan(t, "plan a")
	planB := env.createPlan(t, "plan b")
	planC := env.createPlan(t, "plan c")
	m1 := env.node.Generate()

	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planA.String(),
		ModelIDs: []string{m1.String()},
	}))
	for _, target := range []snowflake.ID{planB, planC, planA} {
		env.clock.Advance(time.Minute)
		_, err := env.svc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
			ModelID:  m1.String(),
			ToPlanID: target.String(),
		})
		require.NoError(t, err)
		assert.Len(t, env.openLedgerRows(t, m1), 1)
	}

	// Four intervals total, never deleted.
	assert.EqualValues(t, 4, env.ledgerCount(t))
}

func TestCloseTimestamp_StrictlyAfterOpen(t *testing.T) {
	env := newTestEnv(t)
	planA := env.createPlan(t, "plan a")
	planB := env.createPlan(t, "plan b")
	m1 := env.node.Generate()

	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planA.String(),
		ModelIDs: []string{m1.String()},
	}))

	// Clock does not advance: interval check still must hold.
	_, err := env.svc.TransferModel(env.ctx, membershipdomain.TransferModelRequest{
		ModelID:  m1.String(),
		ToPlanID: planB.String(),
	})
	require.NoError(t, err)

	var closed []membershipdomain.PlanMembership
	require.NoError(t, env.db.
		Where("model_id = ? AND effective_to IS NOT NULL", m1).
		Find(&closed).Error)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].EffectiveTo.After(closed[0].EffectiveFrom))

	// The replacement opens exactly where the old interval closed: no gap,
	// no as-of instant at which the model is in two plans.
	open := env.openLedgerRows(t, m1)
	require.Len(t, open, 1)
	assert.True(t, open[0].EffectiveFrom.Equal(*closed[0].EffectiveTo))
}

func TestActiveMembership(t *testing.T) {
	env := newTestEnv(t)
	planA := env.createPlan(t, "plan a")
	m1 := env.node.Generate()
	m2 := env.node.Generate()

	require.NoError(t, env.svc.ReplacePlanModels(env.ctx, membershipdomain.ReplacePlanModelsRequest{
		PlanID:   planA.String(),
		ModelIDs: []string{m1.String()},
	}))

	resp, err := env.svc.ActiveMembership(env.ctx, m1.String())
	require.NoError(t, err)
	require.NotNil(t, resp.PlanID)
	assert.Equal(t, planA.String(), *resp.PlanID)

	resp, err = env.svc.ActiveMembership(env.ctx, m2.String())
	require.NoError(t, err)
	assert.Nil(t, resp.PlanID)
}

func TestRequestsWithoutOrganization(t *testing.T) {
	env := newTestEnv(t)
	err := env.svc.ReplacePlanModels(context.Background(), membershipdomain.ReplacePlanModelsRequest{
		PlanID: env.node.Generate().String(),
	})
	require.ErrorIs(t, err, membershipdomain.ErrInvalidOrganization)
}
