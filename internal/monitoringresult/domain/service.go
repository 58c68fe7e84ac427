package domain

import (
	"context"
	"errors"
)

type RecordResultRequest struct {
	CycleID      string   `json:"cycle_id"`
	ModelID      string   `json:"model_id" binding:"required"`
	MetricKey    string   `json:"metric_key" binding:"required"`
	ValueNumeric *float64 `json:"value_numeric,omitempty"`
}

type Service interface {
	// RecordResult writes one metric observation. The model must be in the
	// cycle's resolved scope and the cycle must still be collecting.
	RecordResult(ctx context.Context, req RecordResultRequest) (*MonitoringResult, error)

	ListByCycle(ctx context.Context, cycleID string) ([]MonitoringResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCycle        = errors.New("invalid_cycle")
	ErrInvalidModel        = errors.New("invalid_model")
	ErrInvalidMetricKey    = errors.New("invalid_metric_key")
	ErrCycleNotFound       = errors.New("cycle_not_found")
	ErrCycleNotCollecting  = errors.New("cycle_not_collecting")
	ErrModelNotInScope     = errors.New("model_not_in_scope")
	ErrDuplicateResult     = errors.New("duplicate_result")
)
