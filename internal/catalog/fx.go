package catalog

import (
	"github.com/learnsphere/tutorpay/internal/catalog/repository"
	"github.com/learnsphere/tutorpay/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
