// Package domain defines the read-only cycle scope resolution surface.
package domain

import (
	"context"
	"errors"

	cycledomain "github.com/smallbiznis/governa/internal/monitoringcycle/domain"
)

// ScopeResult is the authoritative model set for a cycle plus the signal
// that produced it.
type ScopeResult struct {
	CycleID  string                  `json:"cycle_id"`
	Source   cycledomain.ScopeSource `json:"source"`
	ModelIDs []string                `json:"model_ids"`
}

type Service interface {
	// GetScopeModels resolves the cycle's model set through the ordered
	// fallback chain: explicit snapshot rows, then the plan version's model
	// snapshot, then models with recorded results, then the plan's current
	// ledger set. Never mutates.
	GetScopeModels(ctx context.Context, cycleID string) (ScopeResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCycle        = errors.New("invalid_cycle")
	ErrCycleNotFound       = errors.New("cycle_not_found")
)
