package ingest

import (
	"github.com/smallbiznis/quicksearch/internal/ingest/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ingest.service",
	fx.Provide(service.New),
)
