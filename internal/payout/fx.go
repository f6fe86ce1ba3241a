package payout

import (
	"github.com/learnsphere/tutorpay/internal/payout/repository"
	"github.com/learnsphere/tutorpay/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
