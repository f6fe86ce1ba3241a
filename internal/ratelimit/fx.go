package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/learnsphere/tutorpay/internal/config"
	"go.uber.org/fx"
)

// NewRedisClient returns nil when no address is configured; consumers treat a
// nil client as "limiting disabled".
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewPaymentLimiter),
)
