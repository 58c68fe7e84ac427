package scoperesolver

import (
	"github.com/smallbiznis/governa/internal/scoperesolver/service"
	"go.uber.org/fx"
)

var Module = fx.Module("scoperesolver.service",
	fx.Provide(service.NewService),
)
