package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/actorcontext"
	"github.com/smallbiznis/governa/internal/clock"
	membershipdomain "github.com/smallbiznis/governa/internal/membership/domain"
	cycledomain "github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	"github.com/smallbiznis/governa/internal/observability/metrics"
	"github.com/smallbiznis/governa/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    membershipdomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    membershipdomain.Repository
	metrics *metrics.Metrics
}

func NewService(p Params) membershipdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("membership.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) ReplacePlanModels(ctx context.Context, req membershipdomain.ReplacePlanModelsRequest) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return membershipdomain.ErrInvalidOrganization
	}

	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil || planID == 0 {
		return membershipdomain.ErrInvalidPlan
	}

	desired := make([]snowflake.ID, 0, len(req.ModelIDs))
	seen := make(map[snowflake.ID]struct{}, len(req.ModelIDs))
	for _, raw := range req.ModelIDs {
		modelID, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || modelID == 0 {
			return membershipdomain.ErrInvalidModel
		}
		if _, dup := seen[modelID]; dup {
			continue
		}
		seen[modelID] = struct{}{}
		desired = append(desired, modelID)
	}
	sort.Slice(desired, func(i, j int) bool { return desired[i] < desired[j] })

	changedBy := actorLabel(ctx)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		found, err := s.repo.LockPlans(ctx, tx, orgID, []snowflake.ID{planID})
		if err != nil {
			return err
		}
		s.metrics.ObserveLockWait("plan", time.Since(lockStart))
		if len(found) == 0 {
			return membershipdomain.ErrPlanNotFound
		}

		lockStart = time.Now()
		active, err := s.repo.ActiveByPlanForUpdate(ctx, tx, orgID, planID)
		if err != nil {
			return err
		}
		s.metrics.ObserveLockWait("membership", time.Since(lockStart))

		current := make(map[snowflake.ID]membershipdomain.PlanMembership, len(active))
		for _, rec := range active {
			current[rec.ModelID] = rec
		}

		var toAdd []snowflake.ID
		for _, modelID := range desired {
			if _, ok := current[modelID]; !ok {
				toAdd = append(toAdd, modelID)
			}
		}
		var toRemove []membershipdomain.PlanMembership
		for _, rec := range active {
			if _, ok := seen[rec.ModelID]; !ok {
				toRemove = append(toRemove, rec)
			}
		}
		if len(toAdd) == 0 && len(toRemove) == 0 {
			return nil
		}

		now := s.clock.Now()
		for _, rec := range toRemove {
			if err := s.repo.Close(ctx, tx, rec.ID, closeAt(now, rec.EffectiveFrom)); err != nil {
				return err
			}
		}
		for _, modelID := range toAdd {
			other, err := s.repo.ActiveByModelForUpdate(ctx, tx, orgID, modelID)
			if err != nil {
				return err
			}
			if other != nil {
				return membershipdomain.ErrModelAssignedElsewhere
			}
			if err := s.repo.Insert(ctx, tx, &membershipdomain.PlanMembership{
				ID:            s.genID.Generate(),
				OrgID:         orgID,
				ModelID:       modelID,
				PlanID:        planID,
				EffectiveFrom: now,
				ChangedBy:     changedBy,
				Reason:        strings.TrimSpace(req.Reason),
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}

		return s.repo.RebuildProjection(ctx, tx, orgID, planID)
	})
	if err != nil {
		return err
	}

	s.log.Info("plan member set replaced",
		zap.String("plan_id", planID.String()),
		zap.Int("desired_count", len(desired)),
	)
	return nil
}

func (s *Service) TransferModel(ctx context.Context, req membershipdomain.TransferModelRequest) (membershipdomain.TransferModelResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return membershipdomain.TransferModelResponse{}, membershipdomain.ErrInvalidOrganization
	}

	modelID, err := snowflake.ParseString(strings.TrimSpace(req.ModelID))
	if err != nil || modelID == 0 {
		return membershipdomain.TransferModelResponse{}, membershipdomain.ErrInvalidModel
	}
	toPlanID, err := snowflake.ParseString(strings.TrimSpace(req.ToPlanID))
	if err != nil || toPlanID == 0 {
		return membershipdomain.TransferModelResponse{}, membershipdomain.ErrInvalidPlan
	}

	changedBy := actorLabel(ctx)

	var resp membershipdomain.TransferModelResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Unlocked peek to learn which plans the lock set must cover.
		peek, err := s.repo.ActiveByModel(ctx, tx, orgID, modelID)
		if err != nil {
			return err
		}

		planIDs := []snowflake.ID{toPlanID}
		if peek != nil && peek.PlanID != toPlanID {
			planIDs = append(planIDs, peek.PlanID)
		}

		lockStart := time.Now()
		found, err := s.repo.LockPlans(ctx, tx, orgID, planIDs)
		if err != nil {
			return err
		}
		s.metrics.ObserveLockWait("plan", time.Since(lockStart))
		if !containsID(found, toPlanID) {
			return membershipdomain.ErrPlanNotFound
		}

		lockStart = time.Now()
		current, err := s.repo.ActiveByModelForUpdate(ctx, tx, orgID, modelID)
		if err != nil {
			return err
		}
		s.metrics.ObserveLockWait("membership", time.Since(lockStart))

		if current != nil {
			// The peek is advisory; if the assignment moved to a plan we did
			// not lock, the lock set is wrong and the caller must retry.
			if !containsID(planIDs, current.PlanID) {
				s.metrics.RecordTransferConflict()
				return membershipdomain.ErrConcurrentModification
			}
			if current.PlanID == toPlanID {
				from := current.PlanID.String()
				resp = membershipdomain.TransferModelResponse{
					FromPlanID: &from,
					ToPlanID:   toPlanID.String(),
				}
				return nil
			}

			blocking, err := s.repo.FindBlockingCycle(ctx, tx, orgID, current.PlanID, cycledomain.TransferBlockingStatuses())
			if err != nil {
				return err
			}
			if blocking != nil {
				s.metrics.RecordTransferConflict()
				return &membershipdomain.TransferBlockedError{CycleStatus: blocking.Status}
			}
		}

		now := s.clock.Now()
		openFrom := now
		var fromPlanID *snowflake.ID
		if current != nil {
			closedAt := closeAt(now, current.EffectiveFrom)
			if err := s.repo.Close(ctx, tx, current.ID, closedAt); err != nil {
				return err
			}
			// The replacement opens where the old interval closed, keeping the
			// model's intervals contiguous even within one clock tick.
			openFrom = closedAt
			fromPlanID = &current.PlanID
		}

		if err := s.repo.Insert(ctx, tx, &membershipdomain.PlanMembership{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			ModelID:       modelID,
			PlanID:        toPlanID,
			EffectiveFrom: openFrom,
			ChangedBy:     changedBy,
			Reason:        strings.TrimSpace(req.Reason),
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		if fromPlanID != nil {
			if err := s.repo.RebuildProjection(ctx, tx, orgID, *fromPlanID); err != nil {
				return err
			}
		}
		if err := s.repo.RebuildProjection(ctx, tx, orgID, toPlanID); err != nil {
			return err
		}

		resp = membershipdomain.TransferModelResponse{ToPlanID: toPlanID.String()}
		if fromPlanID != nil {
			from := fromPlanID.String()
			resp.FromPlanID = &from
		}
		return nil
	})
	if err != nil {
		return membershipdomain.TransferModelResponse{}, err
	}

	s.log.Info("model transferred",
		zap.String("model_id", modelID.String()),
		zap.String("to_plan_id", toPlanID.String()),
	)
	return resp, nil
}

func (s *Service) ActiveModelIDs(ctx context.Context, planID string) ([]string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, membershipdomain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(planID))
	if err != nil || id == 0 {
		return nil, membershipdomain.ErrInvalidPlan
	}

	exists, err := s.repo.PlanExists(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, membershipdomain.ErrPlanNotFound
	}

	ids, err := s.repo.ProjectionModelIDs(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, modelID := range ids {
		out = append(out, modelID.String())
	}
	return out, nil
}

func (s *Service) ActiveMembership(ctx context.Context, modelID string) (membershipdomain.ModelMembershipResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return membershipdomain.ModelMembershipResponse{}, membershipdomain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(modelID))
	if err != nil || id == 0 {
		return membershipdomain.ModelMembershipResponse{}, membershipdomain.ErrInvalidModel
	}

	rec, err := s.repo.ActiveByModel(ctx, s.db, orgID, id)
	if err != nil {
		return membershipdomain.ModelMembershipResponse{}, err
	}
	resp := membershipdomain.ModelMembershipResponse{ModelID: id.String()}
	if rec != nil {
		planID := rec.PlanID.String()
		resp.PlanID = &planID
	}
	return resp, nil
}

// closeAt keeps effective_to strictly greater than effective_from even when
// a row is opened and closed within one clock tick.
func closeAt(now, from time.Time) time.Time {
	if now.After(from) {
		return now
	}
	return from.Add(time.Microsecond)
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

func containsID(ids []snowflake.ID, id snowflake.ID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
