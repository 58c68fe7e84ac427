package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	cycledomain "github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	plandomain "github.com/smallbiznis/governa/internal/monitoringplan/domain"
	resultdomain "github.com/smallbiznis/governa/internal/monitoringresult/domain"
	"github.com/smallbiznis/governa/internal/observability/metrics"
	"github.com/smallbiznis/governa/internal/orgcontext"
	"github.com/smallbiznis/governa/internal/scoperesolver/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	CycleRepo  cycledomain.Repository
	PlanRepo   plandomain.Repository
	ResultRepo resultdomain.Repository
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cycleRepo  cycledomain.Repository
	planRepo   plandomain.Repository
	resultRepo resultdomain.Repository
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("scoperesolver.service"),
		cycleRepo:  p.CycleRepo,
		planRepo:   p.PlanRepo,
		resultRepo: p.ResultRepo,
		metrics:    p.Metrics,
	}
}

func (s *Service) GetScopeModels(ctx context.Context, cycleID string) (domain.ScopeResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ScopeResult{}, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(cycleID))
	if err != nil || id == 0 {
		return domain.ScopeResult{}, domain.ErrInvalidCycle
	}

	cycle, err := s.cycleRepo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.ScopeResult{}, err
	}
	if cycle == nil {
		return domain.ScopeResult{}, domain.ErrCycleNotFound
	}

	// 1. Explicit snapshot rows are authoritative whenever present.
	snapshots, err := s.cycleRepo.SnapshotsByCycle(ctx, s.db, id)
	if err != nil {
		return domain.ScopeResult{}, err
	}
	if len(snapshots) > 0 {
		modelIDs := make([]string, 0, len(snapshots))
		for _, snap := range snapshots {
			modelIDs = append(modelIDs, snap.ModelID.String())
		}
		return s.resolved(cycleID, snapshots[0].ScopeSource, modelIDs), nil
	}

	// 2. A referenced plan version may carry its own member snapshot.
	if cycle.PlanVersionID != nil {
		version, err := s.planRepo.FindVersionByID(ctx, s.db, orgID, *cycle.PlanVersionID)
		if err != nil {
			return domain.ScopeResult{}, err
		}
		if version != nil && len(version.ModelSnapshot) > 0 {
			var modelIDs []string
			if err := json.Unmarshal(version.ModelSnapshot, &modelIDs); err == nil {
				return s.resolved(cycleID, cycledomain.ScopeSourceVersionSnapshot, modelIDs), nil
			}
			s.log.Warn("undecodable plan version model snapshot",
				zap.String("cycle_id", cycleID),
				zap.String("plan_version_id", version.ID.String()),
			)
		}
	}

	// 3. Membership by evidence: models that already recorded results.
	evidenced, err := s.resultRepo.DistinctModelIDs(ctx, s.db, id)
	if err != nil {
		return domain.ScopeResult{}, err
	}
	if len(evidenced) > 0 {
		modelIDs := make([]string, 0, len(evidenced))
		for _, modelID := range evidenced {
			modelIDs = append(modelIDs, modelID.String())
		}
		return s.resolved(cycleID, cycledomain.ScopeSourceResultEvidence, modelIDs), nil
	}

	// 4. The current ledger set, the least precise answer.
	current, err := s.planRepo.ProjectionModelIDs(ctx, s.db, orgID, cycle.PlanID)
	if err != nil {
		return domain.ScopeResult{}, err
	}
	modelIDs := make([]string, 0, len(current))
	for _, modelID := range current {
		modelIDs = append(modelIDs, modelID.String())
	}
	return s.resolved(cycleID, cycledomain.ScopeSourceMembershipFallback, modelIDs), nil
}

func (s *Service) resolved(cycleID string, source cycledomain.ScopeSource, modelIDs []string) domain.ScopeResult {
	s.metrics.RecordScopeResolution(string(source))
	return domain.ScopeResult{
		CycleID:  cycleID,
		Source:   source,
		ModelIDs: modelIDs,
	}
}
