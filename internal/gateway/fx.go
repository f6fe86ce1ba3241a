package gateway

import (
	"github.com/learnsphere/tutorpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(func(cfg config.Config, log *zap.Logger) *Client {
		return NewClient(cfg.Gateway, log)
	}),
)
