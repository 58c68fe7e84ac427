package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/actorcontext"
	"github.com/smallbiznis/governa/internal/clock"
	"github.com/smallbiznis/governa/internal/monitoringplan/domain"
	"github.com/smallbiznis/governa/internal/orgcontext"
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

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Store repository.Repository[domain.Plan]
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	store repository.Repository[domain.Plan]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("monitoringplan.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		store: p.Store,
	}
}

func (s *Service) CreatePlan(ctx context.Context, req domain.CreatePlanRequest) (*domain.Plan, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	frequency := strings.TrimSpace(strings.ToLower(req.Frequency))
	if frequency == "" {
		frequency = domain.FrequencyMonthly
	}
	switch frequency {
	case domain.FrequencyMonthly, domain.FrequencyQuarterly, domain.FrequencyAnnual:
	default:
		return nil, domain.ErrInvalidFrequency
	}

	now := s.clock.Now()
	plan := &domain.Plan{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      name,
		Frequency: frequency,
		Status:    domain.PlanStatusActive,
		CreatedBy: actorLabel(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, plan); err != nil {
		return nil, err
	}

	s.log.Info("plan created", zap.String("plan_id", plan.ID.String()), zap.String("name", name))
	return plan, nil
}

func (s *Service) GetPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(planID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidPlan
	}

	plan, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) ListPlans(ctx context.Context, req domain.ListPlansRequest) (domain.ListPlansResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListPlansResponse{}, domain.ErrInvalidOrganization
	}

	filter := &domain.Plan{OrgID: orgID}
	opts := []option.QueryOption{
		option.WithSortBy("created_at desc, id desc"),
		option.ApplyPagination(req.Pagination),
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: status}))
	}

	items, err := s.store.Find(ctx, filter, opts...)
	if err != nil {
		return domain.ListPlansResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.Plan) string {
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

	plans := make([]domain.Plan, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		plans = append(plans, *item)
	}

	resp := domain.ListPlansResponse{Plans: plans}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) PublishVersion(ctx context.Context, req domain.PublishVersionRequest) (*domain.PlanVersion, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil || planID == 0 {
		return nil, domain.ErrInvalidPlan
	}

	var version *domain.PlanVersion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return domain.ErrPlanNotFound
		}

		latest, err := s.repo.LatestVersion(ctx, tx, orgID, planID)
		if err != nil {
			return err
		}
		next := 1
		if latest != nil {
			next = latest.Version + 1
		}

		var modelSnapshot datatypes.JSON
		if req.IncludeMembers {
			modelIDs, err := s.repo.ProjectionModelIDs(ctx, tx, orgID, planID)
			if err != nil {
				return err
			}
			encoded := make([]string, 0, len(modelIDs))
			for _, id := range modelIDs {
				encoded = append(encoded, id.String())
			}
			raw, err := json.Marshal(encoded)
			if err != nil {
				return err
			}
			modelSnapshot = datatypes.JSON(raw)
		}

		metricConfig := datatypes.JSONMap{}
		for key, value := range req.MetricConfig {
			if key == "" {
				continue
			}
			metricConfig[key] = value
		}

		version = &domain.PlanVersion{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			PlanID:        planID,
			Version:       next,
			MetricConfig:  metricConfig,
			ModelSnapshot: modelSnapshot,
			PublishedBy:   actorLabel(ctx),
			PublishedAt:   s.clock.Now(),
		}
		return s.repo.InsertVersion(ctx, tx, version)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan version published",
		zap.String("plan_id", planID.String()),
		zap.Int("version", version.Version),
	)
	return version, nil
}

func (s *Service) ActiveVersion(ctx context.Context, planID string) (*domain.PlanVersion, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(planID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidPlan
	}

	plan, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}

	latest, err := s.repo.LatestVersion(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, domain.ErrNoVersion
	}
	return latest, nil
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
