package main

import (
	"github.com/Johanhagos/mijn-api/internal/accesstoken"
	"github.com/Johanhagos/mijn-api/internal/apikey"
	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/Johanhagos/mijn-api/internal/invoice"
	"github.com/Johanhagos/mijn-api/internal/merchant"
	"github.com/Johanhagos/mijn-api/internal/migration"
	"github.com/Johanhagos/mijn-api/internal/notify"
	"github.com/Johanhagos/mijn-api/internal/observability"
	"github.com/Johanhagos/mijn-api/internal/payment"
	"github.com/Johanhagos/mijn-api/internal/provisioning"
	"github.com/Johanhagos/mijn-api/internal/ratelimit"
	"github.com/Johanhagos/mijn-api/internal/reconcile"
	"github.com/Johanhagos/mijn-api/internal/server"
	"github.com/Johanhagos/mijn-api/internal/session"
	"github.com/Johanhagos/mijn-api/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// state and side effects
		session.Module,
		merchant.Module,
		invoice.Module,
		apikey.Module,
		accesstoken.Module,
		notify.Module,
		ratelimit.Module,
		provisioning.Module,
		reconcile.Module,
		payment.Module,

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
