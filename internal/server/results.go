package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	resultdomain "github.com/smallbiznis/governa/internal/monitoringresult/domain"
)

func (s *Server) ListCycleResults(c *gin.Context) {
	results, err := s.resultSvc.ListByCycle(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cycle_id": c.Param("id"),
		"results":  results,
	})
}

type recordResultBody struct {
	ModelID      string   `json:"model_id" binding:"required"`
	MetricKey    string   `json:"metric_key" binding:"required"`
	ValueNumeric *float64 `json:"value_numeric,omitempty"`
}

func (s *Server) RecordResult(c *gin.Context) {
	var body recordResultBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.resultSvc.RecordResult(c.Request.Context(), resultdomain.RecordResultRequest{
		CycleID:      c.Param("id"),
		ModelID:      body.ModelID,
		MetricKey:    body.MetricKey,
		ValueNumeric: body.ValueNumeric,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resultID := result.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, "", nil, "result.record", "result", &resultID, map[string]any{
		"cycle_id":   result.CycleID.String(),
		"model_id":   result.ModelID.String(),
		"metric_key": result.MetricKey,
	})

	c.JSON(http.StatusCreated, result)
}
