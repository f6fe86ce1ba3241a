package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/learnsphere/tutorpay/internal/catalog"
	"github.com/learnsphere/tutorpay/internal/clock"
	"github.com/learnsphere/tutorpay/internal/config"
	"github.com/learnsphere/tutorpay/internal/gateway"
	"github.com/learnsphere/tutorpay/internal/intent"
	"github.com/learnsphere/tutorpay/internal/migration"
	"github.com/learnsphere/tutorpay/internal/observability"
	"github.com/learnsphere/tutorpay/internal/payout"
	"github.com/learnsphere/tutorpay/internal/providers"
	"github.com/learnsphere/tutorpay/internal/ratelimit"
	"github.com/learnsphere/tutorpay/internal/reporting"
	"github.com/learnsphere/tutorpay/internal/server"
	"github.com/learnsphere/tutorpay/internal/settlement"
	"github.com/learnsphere/tutorpay/internal/webhook"
	"github.com/learnsphere/tutorpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		gateway.Module,
		catalog.Module,
		intent.Module,
		settlement.Module,
		webhook.Module,
		payout.Module,
		providers.Module,
		ratelimit.Module,
		reporting.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
