package intent

import (
	"github.com/learnsphere/tutorpay/internal/intent/repository"
	"github.com/learnsphere/tutorpay/internal/intent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("intent",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
