package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/actorcontext"
	"github.com/smallbiznis/governa/internal/clock"
	cycledomain "github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	"github.com/smallbiznis/governa/internal/monitoringresult/domain"
	"github.com/smallbiznis/governa/internal/orgcontext"
	resolverdomain "github.com/smallbiznis/governa/internal/scoperesolver/domain"
	"github.com/smallbiznis/governa/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	CycleRepo cycledomain.Repository
	Resolver  resolverdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	cycleRepo cycledomain.Repository
	resolver  resolverdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("monitoringresult.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		cycleRepo: p.CycleRepo,
		resolver:  p.Resolver,
	}
}

func (s *Service) RecordResult(ctx context.Context, req domain.RecordResultRequest) (*domain.MonitoringResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	cycleID, err := snowflake.ParseString(strings.TrimSpace(req.CycleID))
	if err != nil || cycleID == 0 {
		return nil, domain.ErrInvalidCycle
	}
	modelID, err := snowflake.ParseString(strings.TrimSpace(req.ModelID))
	if err != nil || modelID == 0 {
		return nil, domain.ErrInvalidModel
	}
	metricKey := strings.TrimSpace(req.MetricKey)
	if metricKey == "" {
		return nil, domain.ErrInvalidMetricKey
	}

	cycle, err := s.cycleRepo.FindByID(ctx, s.db, orgID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, domain.ErrCycleNotFound
	}
	switch cycle.Status {
	case cycledomain.StatusDataCollection, cycledomain.StatusUnderReview:
	default:
		return nil, domain.ErrCycleNotCollecting
	}

	scope, err := s.resolver.GetScopeModels(ctx, cycleID.String())
	if err != nil {
		return nil, err
	}
	inScope := false
	for _, scoped := range scope.ModelIDs {
		if scoped == modelID.String() {
			inScope = true
			break
		}
	}
	if !inScope {
		return nil, domain.ErrModelNotInScope
	}

	result := &domain.MonitoringResult{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		CycleID:      cycleID,
		ModelID:      modelID,
		MetricKey:    metricKey,
		ValueNumeric: req.ValueNumeric,
		Status:       domain.ResultStatusRecorded,
		RecordedBy:   recordedBy(ctx),
		RecordedAt:   s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, result); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateResult
		}
		return nil, err
	}

	s.log.Info("result recorded",
		zap.String("cycle_id", cycleID.String()),
		zap.String("model_id", modelID.String()),
		zap.String("metric_key", metricKey),
	)
	return result, nil
}

func (s *Service) ListByCycle(ctx context.Context, cycleID string) ([]domain.MonitoringResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(cycleID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidCycle
	}

	cycle, err := s.cycleRepo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, domain.ErrCycleNotFound
	}

	return s.repo.ListByCycle(ctx, s.db, orgID, id)
}

func recordedBy(ctx context.Context) string {
	actorType, actorID := actorcontext.ActorFromContext(ctx)
	if actorID != "" {
		return actorID
	}
	if actorType != "" {
		return actorType
	}
	return "system"
}
