package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/actorcontext"
	"github.com/smallbiznis/governa/internal/clock"
	membershipdomain "github.com/smallbiznis/governa/internal/membership/domain"
	"github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	plandomain "github.com/smallbiznis/governa/internal/monitoringplan/domain"
	"github.com/smallbiznis/governa/internal/observability/metrics"
	"github.com/smallbiznis/governa/internal/orgcontext"
	"github.com/smallbiznis/governa/pkg/db"
	"github.com/smallbiznis/governa/pkg/db/option"
	"github.com/smallbiznis/governa/pkg/db/pagination"
	"github.com/smallbiznis/governa/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           domain.Repository
	PlanRepo       plandomain.Repository
	MembershipRepo membershipdomain.Repository
	Store          repository.Repository[domain.MonitoringCycle]
	Metrics        *metrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           domain.Repository
	planRepo       plandomain.Repository
	membershipRepo membershipdomain.Repository
	store          repository.Repository[domain.MonitoringCycle]
	metrics        *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("monitoringcycle.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		planRepo:       p.PlanRepo,
		membershipRepo: p.MembershipRepo,
		store:          p.Store,
		metrics:        p.Metrics,
	}
}

func (s *Service) CreateCycle(ctx context.Context, req domain.CreateCycleRequest) (*domain.MonitoringCycle, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil || planID == 0 {
		return nil, domain.ErrInvalidPlan
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() || !req.PeriodEnd.After(req.PeriodStart) {
		return nil, domain.ErrInvalidPeriod
	}

	plan, err := s.planRepo.FindByID(ctx, s.db, orgID, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}

	now := s.clock.Now()
	cycle := &domain.MonitoringCycle{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		PlanID:      planID,
		PeriodStart: req.PeriodStart.UTC(),
		PeriodEnd:   req.PeriodEnd.UTC(),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, cycle); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicatePeriod
		}
		return nil, err
	}

	s.log.Info("cycle created",
		zap.String("cycle_id", cycle.ID.String()),
		zap.String("plan_id", planID.String()),
	)
	return cycle, nil
}

func (s *Service) GetCycle(ctx context.Context, cycleID string) (*domain.MonitoringCycle, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(cycleID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidCycle
	}

	cycle, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, domain.ErrCycleNotFound
	}
	return cycle, nil
}

func (s *Service) ListCycles(ctx context.Context, req domain.ListCyclesRequest) (domain.ListCyclesResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListCyclesResponse{}, domain.ErrInvalidOrganization
	}

	filter := &domain.MonitoringCycle{OrgID: orgID}
	opts := []option.QueryOption{
		option.WithSortBy("created_at desc, id desc"),
		option.ApplyPagination(req.Pagination),
	}
	if raw := strings.TrimSpace(req.PlanID); raw != "" {
		planID, err := snowflake.ParseString(raw)
		if err != nil || planID == 0 {
			return domain.ListCyclesResponse{}, domain.ErrInvalidPlan
		}
		filter.PlanID = planID
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: status}))
	}

	items, err := s.store.Find(ctx, filter, opts...)
	if err != nil {
		return domain.ListCyclesResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.MonitoringCycle) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	cycles := make([]domain.MonitoringCycle, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		cycles = append(cycles, *item)
	}

	resp := domain.ListCyclesResponse{Cycles: cycles}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) StartCycle(ctx context.Context, cycleID string) (domain.StartCycleResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.StartCycleResponse{}, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(cycleID))
	if err != nil || id == 0 {
		return domain.StartCycleResponse{}, domain.ErrInvalidCycle
	}

	lockedBy := actorLabel(ctx)

	var resp domain.StartCycleResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Unlocked peek to learn the plan; the plan lock comes before any
		// cycle or membership lock.
		peek, err := s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if peek == nil {
			return domain.ErrCycleNotFound
		}

		lockStart := time.Now()
		plan, err := s.planRepo.FindByIDForUpdate(ctx, tx, orgID, peek.PlanID)
		if err != nil {
			return err
		}
		s.metrics.ObserveLockWait("plan", time.Since(lockStart))
		if plan == nil {
			return domain.ErrPlanNotFound
		}

		cycle, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if cycle == nil {
			return domain.ErrCycleNotFound
		}
		if cycle.Status != domain.StatusPending {
			return domain.ErrCycleNotPending
		}

		lockStart = time.Now()
		members, err := s.membershipRepo.ActiveByPlanForUpdate(ctx, tx, orgID, cycle.PlanID)
		if err != nil {
			return err
		}
		s.metrics.ObserveLockWait("membership", time.Since(lockStart))

		now := s.clock.Now()

		version, err := s.planRepo.LatestVersion(ctx, tx, orgID, cycle.PlanID)
		if err != nil {
			return err
		}
		if version == nil {
			version, err = s.establishVersion(ctx, tx, orgID, cycle.PlanID, members, lockedBy, now)
			if err != nil {
				return err
			}
		}

		scopeModels := make([]string, 0, len(members))
		snapshots := make([]domain.CycleScopeSnapshot, 0, len(members))
		for _, member := range members {
			scopeModels = append(scopeModels, member.ModelID.String())
			snapshots = append(snapshots, domain.CycleScopeSnapshot{
				CycleID:     cycle.ID,
				ModelID:     member.ModelID,
				LockedAt:    now,
				ScopeSource: domain.ScopeSourceLedgerDirect,
			})
		}
		if err := s.repo.InsertSnapshots(ctx, tx, snapshots); err != nil {
			return err
		}

		if err := s.repo.StampVersion(ctx, tx, cycle.ID, version.ID, now, lockedBy); err != nil {
			return err
		}

		resp = domain.StartCycleResponse{
			CycleID:     cycle.ID.String(),
			Status:      domain.StatusDataCollection,
			ScopeModels: scopeModels,
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordCycleStart("error")
		return domain.StartCycleResponse{}, err
	}

	s.metrics.RecordCycleStart("ok")
	s.log.Info("cycle started",
		zap.String("cycle_id", resp.CycleID),
		zap.Int("scope_size", len(resp.ScopeModels)),
	)
	return resp, nil
}

func (s *Service) Transition(ctx context.Context, req domain.TransitionRequest) (*domain.MonitoringCycle, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(req.CycleID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidCycle
	}

	target := strings.TrimSpace(strings.ToUpper(req.Target))
	switch target {
	case domain.StatusUnderReview, domain.StatusPendingApproval, domain.StatusApproved, domain.StatusCancelled:
	case domain.StatusPending, domain.StatusDataCollection:
		// PENDING is never a target; DATA_COLLECTION only via StartCycle.
		return nil, domain.ErrInvalidTransition
	default:
		return nil, domain.ErrInvalidStatus
	}

	var cycle *domain.MonitoringCycle
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cycle, err = s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if cycle == nil {
			return domain.ErrCycleNotFound
		}
		if !domain.CanTransition(cycle.Status, target) {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, cycle.ID, target, now); err != nil {
			return err
		}
		cycle.Status = target
		cycle.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cycle transitioned",
		zap.String("cycle_id", cycle.ID.String()),
		zap.String("status", cycle.Status),
	)
	return cycle, nil
}

// establishVersion publishes version 1 on behalf of a cycle start when the
// plan has never been published. The member list being frozen is included so
// the version snapshot matches the cycle scope.
func (s *Service) establishVersion(ctx context.Context, tx *gorm.DB, orgID, planID snowflake.ID, members []membershipdomain.PlanMembership, lockedBy string, now time.Time) (*plandomain.PlanVersion, error) {
	encoded := make([]string, 0, len(members))
	for _, member := range members {
		encoded = append(encoded, member.ModelID.String())
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return nil, err
	}

	version := &plandomain.PlanVersion{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		PlanID:        planID,
		Version:       1,
		MetricConfig:  datatypes.JSONMap{},
		ModelSnapshot: datatypes.JSON(raw),
		PublishedBy:   lockedBy,
		PublishedAt:   now,
	}
	if err := s.planRepo.InsertVersion(ctx, tx, version); err != nil {
		return nil, err
	}
	return version, nil
}

func actorLabel(ctx context.Context) string {
	actorType, actorID := actorcontext.ActorFromContext(ctx)
	if actorID != "" {
		return actorID
	}
	if actorType != "" {
		return actorType
	}
	return "system"
}
