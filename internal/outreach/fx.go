package outreach

import (
	"github.com/smallbiznis/recouply/internal/outreach/repository"
	"github.com/smallbiznis/recouply/internal/outreach/service"
	"go.uber.org/fx"
)

var Module = fx.Module("outreach.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
