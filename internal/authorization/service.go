// Package authorization enforces role-based access over governance actions.
package authorization

import (
	"context"
	"errors"

	"go.uber.org/fx"
)

type Service interface {
	// Authorize checks that the actor may perform action on object within
	// the organization. Actor strings are "system" or "user:<id>".
	Authorize(ctx context.Context, actor string, role string, orgID string, object string, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
