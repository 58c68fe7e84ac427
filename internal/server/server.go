package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/governa/internal/audit"
	auditdomain "github.com/smallbiznis/governa/internal/audit/domain"
	"github.com/smallbiznis/governa/internal/authorization"
	"github.com/smallbiznis/governa/internal/config"
	"github.com/smallbiznis/governa/internal/membership"
	membershipdomain "github.com/smallbiznis/governa/internal/membership/domain"
	"github.com/smallbiznis/governa/internal/modelinventory"
	modeldomain "github.com/smallbiznis/governa/internal/modelinventory/domain"
	"github.com/smallbiznis/governa/internal/monitoringcycle"
	cycledomain "github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	"github.com/smallbiznis/governa/internal/monitoringplan"
	plandomain "github.com/smallbiznis/governa/internal/monitoringplan/domain"
	"github.com/smallbiznis/governa/internal/monitoringresult"
	resultdomain "github.com/smallbiznis/governa/internal/monitoringresult/domain"
	obsmetrics "github.com/smallbiznis/governa/internal/observability/metrics"
	obstracing "github.com/smallbiznis/governa/internal/observability/tracing"
	"github.com/smallbiznis/governa/internal/scoperesolver"
	resolverdomain "github.com/smallbiznis/governa/internal/scoperesolver/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	modelinventory.Module,
	monitoringplan.Module,
	membership.Module,
	monitoringcycle.Module,
	monitoringresult.Module,
	scoperesolver.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestContextMiddleware(cfg))
	r.Use(RequestLogger(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	return NewEngine(cfg, log, httpMetrics, gatherer)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	modelSvc      modeldomain.Service
	planSvc       plandomain.Service
	membershipSvc membershipdomain.Service
	cycleSvc      cycledomain.Service
	resultSvc     resultdomain.Service
	resolverSvc   resolverdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	ModelSvc      modeldomain.Service
	PlanSvc       plandomain.Service
	MembershipSvc membershipdomain.Service
	CycleSvc      cycledomain.Service
	ResultSvc     resultdomain.Service
	ResolverSvc   resolverdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		modelSvc:      p.ModelSvc,
		planSvc:       p.PlanSvc,
		membershipSvc: p.MembershipSvc,
		cycleSvc:      p.CycleSvc,
		resultSvc:     p.ResultSvc,
		resolverSvc:   p.ResolverSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	// -------- Model inventory --------
	api.GET("/models", s.authorizeOrgAction(authorization.ObjectModel, authorization.ActionModelView), s.ListModels)
	api.POST("/models", s.authorizeOrgAction(authorization.ObjectModel, authorization.ActionModelCreate), s.CreateModel)
	api.GET("/models/:id", s.authorizeOrgAction(authorization.ObjectModel, authorization.ActionModelView), s.GetModel)
	api.POST("/models/:id/retire", s.authorizeOrgAction(authorization.ObjectModel, authorization.ActionModelRetire), s.RetireModel)
	api.GET("/models/:id/membership", s.authorizeOrgAction(authorization.ObjectMembership, authorization.ActionMembershipView), s.GetModelMembership)
	api.POST("/models/:id/transfer", s.authorizeOrgAction(authorization.ObjectMembership, authorization.ActionMembershipTransfer), s.TransferModel)

	// -------- Plans and versions --------
	api.GET("/plans", s.authorizeOrgAction(authorization.ObjectPlan, authorization.ActionPlanView), s.ListPlans)
	api.POST("/plans", s.authorizeOrgAction(authorization.ObjectPlan, authorization.ActionPlanCreate), s.CreatePlan)
	api.GET("/plans/:id", s.authorizeOrgAction(authorization.ObjectPlan, authorization.ActionPlanView), s.GetPlan)
	api.POST("/plans/:id/versions", s.authorizeOrgAction(authorization.ObjectPlan, authorization.ActionPlanPublish), s.PublishPlanVersion)
	api.GET("/plans/:id/versions/active", s.authorizeOrgAction(authorization.ObjectPlan, authorization.ActionPlanView), s.GetActivePlanVersion)

	// -------- Membership ledger --------
	api.GET("/plans/:id/models", s.authorizeOrgAction(authorization.ObjectMembership, authorization.ActionMembershipView), s.ListPlanModels)
	api.PUT("/plans/:id/models", s.authorizeOrgAction(authorization.ObjectMembership, authorization.ActionMembershipReplace), s.ReplacePlanModels)

	// -------- Cycles --------
	api.GET("/cycles", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionCycleView), s.ListCycles)
	api.POST("/cycles", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionCycleCreate), s.CreateCycle)
	api.GET("/cycles/:id", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionCycleView), s.GetCycle)
	api.POST("/cycles/:id/start", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionCycleStart), s.StartCycle)
	api.POST("/cycles/:id/transition", s.authorizeOrgAction(authorization.ObjectCycle, authorization.ActionCycleTransition), s.TransitionCycle)
	api.GET("/cycles/:id/scope", s.authorizeOrgAction(authorization.ObjectScope, authorization.ActionScopeView), s.GetCycleScope)

	// -------- Results --------
	api.GET("/cycles/:id/results", s.authorizeOrgAction(authorization.ObjectResult, authorization.ActionResultView), s.ListCycleResults)
	api.POST("/cycles/:id/results", s.authorizeOrgAction(authorization.ObjectResult, authorization.ActionResultRecord), s.RecordResult)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
