package monitoringplan

import (
	"github.com/smallbiznis/governa/internal/monitoringplan/domain"
	"github.com/smallbiznis/governa/internal/monitoringplan/repository"
	"github.com/smallbiznis/governa/internal/monitoringplan/service"
	pkgrepository "github.com/smallbiznis/governa/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("monitoringplan.service",
	fx.Provide(repository.Provide),
	fx.Provide(pkgrepository.ProvideStore[domain.Plan]),
	fx.Provide(service.NewService),
)
