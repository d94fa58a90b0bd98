package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/branding"
	"github.com/smallbiznis/recouply/internal/cache"
	"github.com/smallbiznis/recouply/internal/clock"
	"github.com/smallbiznis/recouply/internal/config"
	"github.com/smallbiznis/recouply/internal/engine"
	"github.com/smallbiznis/recouply/internal/observability"
	"github.com/smallbiznis/recouply/internal/outreach"
	"github.com/smallbiznis/recouply/internal/providers"
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

		// Domain services required by the engine
		branding.Module,
		outreach.Module,
		providers.Module,
		engine.Module,

		// This binary exists to run the loop.
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.EngineEnabled = true
			return cfg
		}),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
