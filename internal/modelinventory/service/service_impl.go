package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/clock"
	"github.com/smallbiznis/governa/internal/modelinventory/domain"
	"github.com/smallbiznis/governa/internal/orgcontext"
	"github.com/smallbiznis/governa/pkg/db/option"
	"github.com/smallbiznis/governa/pkg/db/pagination"
	"github.com/smallbiznis/governa/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Store repository.Repository[domain.Model]
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	store repository.Repository[domain.Model]
}

func NewService(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("modelinventory.service"),
		genID: p.GenID,
		clock: p.Clock,
		store: p.Store,
	}
}

func (s *Service) CreateModel(ctx context.Context, req domain.CreateModelRequest) (*domain.Model, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	model := &domain.Model{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      name,
		Owner:     strings.TrimSpace(req.Owner),
		Tier:      strings.TrimSpace(req.Tier),
		Status:    domain.ModelStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, model); err != nil {
		return nil, err
	}

	s.log.Info("model registered", zap.String("model_id", model.ID.String()), zap.String("name", name))
	return model, nil
}

func (s *Service) GetModel(ctx context.Context, modelID string) (*domain.Model, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(modelID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidModel
	}

	model, err := s.store.FindOne(ctx, &domain.Model{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, domain.ErrModelNotFound
	}
	return model, nil
}

func (s *Service) ListModels(ctx context.Context, req domain.ListModelsRequest) (domain.ListModelsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListModelsResponse{}, domain.ErrInvalidOrganization
	}

	filter := &domain.Model{OrgID: orgID}
	opts := []option.QueryOption{
		option.WithSortBy("created_at desc, id desc"),
		option.ApplyPagination(req.Pagination),
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: status}))
	}
	if tier := strings.TrimSpace(req.Tier); tier != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "tier", Operator: option.EQ, Value: tier}))
	}

	items, err := s.store.Find(ctx, filter, opts...)
	if err != nil {
		return domain.ListModelsResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.Model) string {
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

	models := make([]domain.Model, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		models = append(models, *item)
	}

	resp := domain.ListModelsResponse{Models: models}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) RetireModel(ctx context.Context, modelID string) (*domain.Model, error) {
	model, err := s.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if model.Status == domain.ModelStatusRetired {
		return nil, domain.ErrModelRetired
	}

	now := s.clock.Now()
	if err := s.store.Update(ctx, model.ID.String(), map[string]any{
		"status":     domain.ModelStatusRetired,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}

	model.Status = domain.ModelStatusRetired
	model.UpdatedAt = now
	s.log.Info("model retired", zap.String("model_id", model.ID.String()))
	return model, nil
}
