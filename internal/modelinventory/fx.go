package modelinventory

import (
	"github.com/smallbiznis/governa/internal/modelinventory/domain"
	"github.com/smallbiznis/governa/internal/modelinventory/service"
	"github.com/smallbiznis/governa/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("modelinventory.service",
	fx.Provide(repository.ProvideStore[domain.Model]),
	fx.Provide(service.NewService),
)
