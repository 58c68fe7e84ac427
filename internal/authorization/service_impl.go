package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/governa/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectModel      = "model"
	ObjectPlan       = "plan"
	ObjectMembership = "membership"
	ObjectCycle      = "cycle"
	ObjectResult     = "result"
	ObjectScope      = "scope"
	ObjectAuditLog   = "audit_log"
)

const (
	ActionModelView   = "model.view"
	ActionModelCreate = "model.create"
	ActionModelRetire = "model.retire"

	ActionPlanView    = "plan.view"
	ActionPlanCreate  = "plan.create"
	ActionPlanPublish = "plan.publish_version"

	ActionMembershipView     = "membership.view"
	ActionMembershipReplace  = "membership.replace"
	ActionMembershipTransfer = "membership.transfer"

	ActionCycleView       = "cycle.view"
	ActionCycleCreate     = "cycle.create"
	ActionCycleStart      = "cycle.start"
	ActionCycleTransition = "cycle.transition"

	ActionResultView   = "result.view"
	ActionResultRecord = "result.record"

	ActionScopeView = "scope.view"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleAdmin     = "admin"
	RoleValidator = "validator"
	RoleViewer    = "viewer"
	RoleSystem    = "system"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, role string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := resolveActor(actor, role)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return ErrForbidden
	}
	return nil
}

func resolveActor(actor string, role string) (string, string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		userIDStr := userID.String()

		role = strings.TrimSpace(strings.ToLower(role))
		switch role {
		case RoleAdmin, RoleValidator, RoleViewer:
		case "":
			role = RoleViewer
		default:
			return actor, "", "user", &userIDStr, ErrInvalidRole
		}
		return actor, "role:" + role, "user", &userIDStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"org_id": orgID,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	readOnly := [][]string{
		{ObjectModel, ActionModelView},
		{ObjectPlan, ActionPlanView},
		{ObjectMembership, ActionMembershipView},
		{ObjectCycle, ActionCycleView},
		{ObjectResult, ActionResultView},
		{ObjectScope, ActionScopeView},
	}

	policies := make([][]string, 0, 64)
	for _, role := range []string{"role:viewer", "role:validator", "role:admin", "role:system"} {
		for _, grant := range readOnly {
			policies = append(policies, []string{role, grant[0], grant[1]})
		}
	}

	// Validators run the review workflow but do not reshape plans.
	policies = append(policies,
		[]string{"role:validator", ObjectResult, ActionResultRecord},
		[]string{"role:validator", ObjectCycle, ActionCycleTransition},
	)

	for _, role := range []string{"role:admin", "role:system"} {
		policies = append(policies,
			[]string{role, ObjectModel, ActionModelCreate},
			[]string{role, ObjectModel, ActionModelRetire},
			[]string{role, ObjectPlan, ActionPlanCreate},
			[]string{role, ObjectPlan, ActionPlanPublish},
			[]string{role, ObjectMembership, ActionMembershipReplace},
			[]string{role, ObjectMembership, ActionMembershipTransfer},
			[]string{role, ObjectCycle, ActionCycleCreate},
			[]string{role, ObjectCycle, ActionCycleStart},
			[]string{role, ObjectCycle, ActionCycleTransition},
			[]string{role, ObjectResult, ActionResultRecord},
			[]string{role, ObjectAuditLog, ActionAuditLogView},
		)
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
