package canonical

import (
	"github.com/smallbiznis/quicksearch/internal/canonical/service"
	"go.uber.org/fx"
)

var Module = fx.Module("canonical.service",
	fx.Provide(service.New),
)
