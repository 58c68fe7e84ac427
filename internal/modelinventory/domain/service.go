package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/governa/pkg/db/pagination"
)

type CreateModelRequest struct {
	Name  string `json:"name" binding:"required"`
	Owner string `json:"owner,omitempty"`
	Tier  string `json:"tier,omitempty"`
}

type ListModelsRequest struct {
	Status string `form:"status"`
	Tier   string `form:"tier"`
	pagination.Pagination
}

type ListModelsResponse struct {
	Models   []Model             `json:"models"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	CreateModel(ctx context.Context, req CreateModelRequest) (*Model, error)
	GetModel(ctx context.Context, modelID string) (*Model, error)
	ListModels(ctx context.Context, req ListModelsRequest) (ListModelsResponse, error)

	// RetireModel marks the model RETIRED. Ledger history stays intact; the
	// caller is expected to remove it from its plan first.
	RetireModel(ctx context.Context, modelID string) (*Model, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidModel        = errors.New("invalid_model")
	ErrInvalidName         = errors.New("invalid_name")
	ErrModelNotFound       = errors.New("model_not_found")
	ErrModelRetired        = errors.New("model_already_retired")
)
