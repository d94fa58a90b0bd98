package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/account"
	"github.com/smallbiznis/recouply/internal/branding"
	"github.com/smallbiznis/recouply/internal/cache"
	"github.com/smallbiznis/recouply/internal/clock"
	"github.com/smallbiznis/recouply/internal/config"
	"github.com/smallbiznis/recouply/internal/debtor"
	"github.com/smallbiznis/recouply/internal/engine"
	"github.com/smallbiznis/recouply/internal/invoice"
	"github.com/smallbiznis/recouply/internal/observability"
	"github.com/smallbiznis/recouply/internal/outreach"
	"github.com/smallbiznis/recouply/internal/providers"
	"github.com/smallbiznis/recouply/internal/ratelimit"
	"github.com/smallbiznis/recouply/internal/reconciliation"
	"github.com/smallbiznis/recouply/internal/server"
	"github.com/smallbiznis/recouply/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,

		account.Module,
		debtor.Module,
		invoice.Module,
		reconciliation.Module,
		branding.Module,
		outreach.Module,
		providers.Module,
		ratelimit.Module,
		engine.Module,

		// The loop belongs to apps/scheduler; the API only serves manual runs.
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.EngineEnabled = false
			return cfg
		}),
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
