package domain

import (
	"context"
	"errors"
)

type ReplacePlanModelsRequest struct {
	PlanID   string   `json:"plan_id"`
	ModelIDs []string `json:"model_ids"`
	Reason   string   `json:"reason,omitempty"`
}

type TransferModelRequest struct {
	ModelID  string `json:"model_id"`
	ToPlanID string `json:"to_plan_id"`
	Reason   string `json:"reason,omitempty"`
}

type TransferModelResponse struct {
	FromPlanID *string `json:"from_plan_id"`
	ToPlanID   string  `json:"to_plan_id"`
}

type ModelMembershipResponse struct {
	ModelID string  `json:"model_id"`
	PlanID  *string `json:"plan_id"`
}

type Service interface {
	// ReplacePlanModels reconciles a plan's active member set against the
	// desired set: removed models get their open ledger row closed, added
	// models get a new open row. Idempotent.
	ReplacePlanModels(ctx context.Context, req ReplacePlanModelsRequest) error

	// TransferModel moves one model to another plan. No-op success when the
	// model is already active there. Rejected with TransferBlockedError when
	// the source plan has a cycle past PENDING.
	TransferModel(ctx context.Context, req TransferModelRequest) (TransferModelResponse, error)

	// ActiveModelIDs returns the plan's current member set from the projection.
	ActiveModelIDs(ctx context.Context, planID string) ([]string, error)

	// ActiveMembership returns the model's current plan, if any.
	ActiveMembership(ctx context.Context, modelID string) (ModelMembershipResponse, error)
}

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidPlan            = errors.New("invalid_plan")
	ErrInvalidModel           = errors.New("invalid_model")
	ErrPlanNotFound           = errors.New("plan_not_found")
	ErrModelAssignedElsewhere = errors.New("model_assigned_elsewhere")
	ErrConcurrentModification = errors.New("concurrent_membership_change")
	ErrTransferBlocked        = errors.New("transfer_blocked")
)

// TransferBlockedError carries the cycle status that made the transfer
// illegal, so callers see a structured conflict instead of a lock timeout.
type TransferBlockedError struct {
	CycleStatus string
}

func (e *TransferBlockedError) Error() string {
	return "transfer not allowed: " + e.CycleStatus
}

func (e *TransferBlockedError) Is(target error) bool {
	return target == ErrTransferBlocked
}
