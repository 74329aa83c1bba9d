package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quicksearch/internal/clock"
	"github.com/smallbiznis/quicksearch/internal/config"
	"github.com/smallbiznis/quicksearch/internal/metricspush"
	"github.com/smallbiznis/quicksearch/internal/migration"
	"github.com/smallbiznis/quicksearch/internal/observability"
	"github.com/smallbiznis/quicksearch/internal/scheduler"
	"github.com/smallbiznis/quicksearch/internal/server"
	"github.com/smallbiznis/quicksearch/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// HTTP API and the catalog domains behind it
		server.Module,

		// Background jobs
		scheduler.Module,
		metricspush.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
