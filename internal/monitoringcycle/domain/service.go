package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/governa/pkg/db/pagination"
)

type CreateCycleRequest struct {
	PlanID      string    `json:"plan_id" binding:"required"`
	PeriodStart time.Time `json:"period_start" binding:"required"`
	PeriodEnd   time.Time `json:"period_end" binding:"required"`
}

type ListCyclesRequest struct {
	PlanID string `form:"plan_id"`
	Status string `form:"status"`
	pagination.Pagination
}

type ListCyclesResponse struct {
	Cycles   []MonitoringCycle   `json:"cycles"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type StartCycleResponse struct {
	CycleID     string   `json:"cycle_id"`
	Status      string   `json:"status"`
	ScopeModels []string `json:"scope_models"`
}

type TransitionRequest struct {
	CycleID string `json:"cycle_id"`
	Target  string `json:"target" binding:"required"`
}

type Service interface {
	CreateCycle(ctx context.Context, req CreateCycleRequest) (*MonitoringCycle, error)
	GetCycle(ctx context.Context, cycleID string) (*MonitoringCycle, error)
	ListCycles(ctx context.Context, req ListCyclesRequest) (ListCyclesResponse, error)

	// StartCycle freezes the plan's current member set into scope snapshot
	// rows, stamps the active plan version (establishing one if the plan has
	// never been published) and advances PENDING to DATA_COLLECTION. Single
	// transaction; an abort leaves the cycle PENDING with zero snapshot rows.
	StartCycle(ctx context.Context, cycleID string) (StartCycleResponse, error)

	// Transition applies a later state-machine step. Scope snapshots are
	// never touched here; DATA_COLLECTION is only reachable via StartCycle.
	Transition(ctx context.Context, req TransitionRequest) (*MonitoringCycle, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCycle        = errors.New("invalid_cycle")
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrCycleNotFound       = errors.New("cycle_not_found")
	ErrPlanNotFound        = errors.New("plan_not_found")
	ErrCycleNotPending     = errors.New("cycle_not_pending")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrDuplicatePeriod     = errors.New("duplicate_cycle_period")
)
