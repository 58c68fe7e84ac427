package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	cycledomain "github.com/smallbiznis/governa/internal/monitoringcycle/domain"
)

func (s *Server) ListCycles(c *gin.Context) {
	var req cycledomain.ListCyclesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cycleSvc.ListCycles(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateCycle(c *gin.Context) {
	var req cycledomain.CreateCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cycle, err := s.cycleSvc.CreateCycle(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cycleID := cycle.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "cycle.create", "cycle", &cycleID, map[string]any{
		"plan_id":      cycle.PlanID.String(),
		"period_start": cycle.PeriodStart,
		"period_end":   cycle.PeriodEnd,
	})

	c.JSON(http.StatusCreated, cycle)
}

func (s *Server) GetCycle(c *gin.Context) {
	cycle, err := s.cycleSvc.GetCycle(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cycle)
}

func (s *Server) StartCycle(c *gin.Context) {
	resp, err := s.cycleSvc.StartCycle(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cycleID := resp.CycleID
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "cycle.start", "cycle", &cycleID, map[string]any{
		"scope_size": len(resp.ScopeModels),
	})

	c.JSON(http.StatusOK, resp)
}

type transitionCycleBody struct {
	Target string `json:"target" binding:"required"`
}

func (s *Server) TransitionCycle(c *gin.Context) {
	var body transitionCycleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cycle, err := s.cycleSvc.Transition(c.Request.Context(), cycledomain.TransitionRequest{
		CycleID: c.Param("id"),
		Target:  body.Target,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cycleID := cycle.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "cycle.transition", "cycle", &cycleID, map[string]any{
		"status": cycle.Status,
	})

	c.JSON(http.StatusOK, cycle)
}

func (s *Server) GetCycleScope(c *gin.Context) {
	scope, err := s.resolverSvc.GetScopeModels(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, scope)
}
