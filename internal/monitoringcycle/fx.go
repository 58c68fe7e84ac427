package monitoringcycle

import (
	"github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	"github.com/smallbiznis/governa/internal/monitoringcycle/repository"
	"github.com/smallbiznis/governa/internal/monitoringcycle/service"
	pkgrepository "github.com/smallbiznis/governa/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("monitoringcycle.service",
	fx.Provide(repository.Provide),
	fx.Provide(pkgrepository.ProvideStore[domain.MonitoringCycle]),
	fx.Provide(service.NewService),
)
