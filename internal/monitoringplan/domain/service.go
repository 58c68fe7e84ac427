package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/governa/pkg/db/pagination"
)

type CreatePlanRequest struct {
	Name      string `json:"name" binding:"required"`
	Frequency string `json:"frequency,omitempty"`
}

type ListPlansRequest struct {
	Status string `form:"status"`
	pagination.Pagination
}

type ListPlansResponse struct {
	Plans    []Plan              `json:"plans"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type PublishVersionRequest struct {
	PlanID         string         `json:"plan_id"`
	MetricConfig   map[string]any `json:"metric_config"`
	IncludeMembers bool           `json:"include_members"`
}

type Service interface {
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	GetPlan(ctx context.Context, planID string) (*Plan, error)
	ListPlans(ctx context.Context, req ListPlansRequest) (ListPlansResponse, error)

	// PublishVersion snapshots the plan's metric configuration as the next
	// version number. With IncludeMembers it also freezes the current member
	// list into the version.
	PublishVersion(ctx context.Context, req PublishVersionRequest) (*PlanVersion, error)

	// ActiveVersion returns the newest published version, or ErrNoVersion.
	ActiveVersion(ctx context.Context, planID string) (*PlanVersion, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidFrequency    = errors.New("invalid_frequency")
	ErrPlanNotFound        = errors.New("plan_not_found")
	ErrNoVersion           = errors.New("plan_has_no_version")
)
