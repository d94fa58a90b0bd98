package branding

import (
	"github.com/smallbiznis/recouply/internal/branding/repository"
	"github.com/smallbiznis/recouply/internal/branding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("branding.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
