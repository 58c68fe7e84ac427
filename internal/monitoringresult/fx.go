package monitoringresult

import (
	"github.com/smallbiznis/governa/internal/monitoringresult/repository"
	"github.com/smallbiznis/governa/internal/monitoringresult/service"
	"go.uber.org/fx"
)

var Module = fx.Module("monitoringresult.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
