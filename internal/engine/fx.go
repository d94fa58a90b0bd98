package engine

import (
	"context"

	"github.com/smallbiznis/recouply/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("engine",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartLoop),
)

// StartLoop runs the engine in the background when ENGINE_ENABLED is set.
func StartLoop(lc fx.Lifecycle, cfg config.Config, eng *Engine) {
	if !cfg.EngineEnabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go eng.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}
