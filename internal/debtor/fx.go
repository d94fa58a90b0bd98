package debtor

import (
	"github.com/smallbiznis/recouply/internal/debtor/repository"
	"github.com/smallbiznis/recouply/internal/debtor/service"
	"go.uber.org/fx"
)

var Module = fx.Module("debtor.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
