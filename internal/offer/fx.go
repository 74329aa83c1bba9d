package offer

import (
	"github.com/smallbiznis/quicksearch/internal/offer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("offer.service",
	fx.Provide(service.New),
)
