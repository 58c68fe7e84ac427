package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	membershipdomain "github.com/smallbiznis/governa/internal/membership/domain"
	plandomain "github.com/smallbiznis/governa/internal/monitoringplan/domain"
)

func (s *Server) ListPlans(c *gin.Context) {
	var req plandomain.ListPlansRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.planSvc.ListPlans(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req plandomain.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.CreatePlan(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	planID := plan.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "plan.create", "plan", &planID, map[string]any{
		"name":      plan.Name,
		"frequency": plan.Frequency,
	})

	c.JSON(http.StatusCreated, plan)
}

func (s *Server) GetPlan(c *gin.Context) {
	plan, err := s.planSvc.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

type publishVersionBody struct {
	MetricConfig   map[string]any `json:"metric_config"`
	IncludeMembers bool           `json:"include_members"`
}

func (s *Server) PublishPlanVersion(c *gin.Context) {
	var body publishVersionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	version, err := s.planSvc.PublishVersion(c.Request.Context(), plandomain.PublishVersionRequest{
		PlanID:         c.Param("id"),
		MetricConfig:   body.MetricConfig,
		IncludeMembers: body.IncludeMembers,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	planID := c.Param("id")
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "plan.publish_version", "plan", &planID, map[string]any{
		"version":         version.Version,
		"include_members": body.IncludeMembers,
	})

	c.JSON(http.StatusCreated, version)
}

func (s *Server) GetActivePlanVersion(c *gin.Context) {
	version, err := s.planSvc.ActiveVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (s *Server) ListPlanModels(c *gin.Context) {
	modelIDs, err := s.membershipSvc.ActiveModelIDs(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan_id":   c.Param("id"),
		"model_ids": modelIDs,
	})
}

type replacePlanModelsBody struct {
	ModelIDs []string `json:"model_ids"`
	Reason   string   `json:"reason,omitempty"`
}

func (s *Server) ReplacePlanModels(c *gin.Context) {
	var body replacePlanModelsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.membershipSvc.ReplacePlanModels(c.Request.Context(), membershipdomain.ReplacePlanModelsRequest{
		PlanID:   c.Param("id"),
		ModelIDs: body.ModelIDs,
		Reason:   body.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	planID := c.Param("id")
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "membership.replace", "plan", &planID, map[string]any{
		"model_ids": body.ModelIDs,
		"reason":    body.Reason,
	})

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
