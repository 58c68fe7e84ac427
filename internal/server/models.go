package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	membershipdomain "github.com/smallbiznis/governa/internal/membership/domain"
	modeldomain "github.com/smallbiznis/governa/internal/modelinventory/domain"
)

func (s *Server) ListModels(c *gin.Context) {
	var req modeldomain.ListModelsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.modelSvc.ListModels(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateModel(c *gin.Context) {
	var req modeldomain.CreateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	model, err := s.modelSvc.CreateModel(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	modelID := model.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "model.create", "model", &modelID, map[string]any{
		"name": model.Name,
		"tier": model.Tier,
	})

	c.JSON(http.StatusCreated, model)
}

func (s *Server) GetModel(c *gin.Context) {
	model, err := s.modelSvc.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

func (s *Server) RetireModel(c *gin.Context) {
	model, err := s.modelSvc.RetireModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	modelID := model.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "model.retire", "model", &modelID, nil)

	c.JSON(http.StatusOK, model)
}

func (s *Server) GetModelMembership(c *gin.Context) {
	resp, err := s.membershipSvc.ActiveMembership(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type transferModelBody struct {
	ToPlanID string `json:"to_plan_id" binding:"required"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) TransferModel(c *gin.Context) {
	var body transferModelBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.membershipSvc.TransferModel(c.Request.Context(), membershipdomain.TransferModelRequest{
		ModelID:  c.Param("id"),
		ToPlanID: body.ToPlanID,
		Reason:   body.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	modelID := c.Param("id")
	metadata := map[string]any{
		"to_plan_id": resp.ToPlanID,
		"reason":     body.Reason,
	}
	if resp.FromPlanID != nil {
		metadata["from_plan_id"] = *resp.FromPlanID
	}
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "membership.transfer", "model", &modelID, metadata)

	c.JSON(http.StatusOK, resp)
}
