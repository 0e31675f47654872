package main

import (
	"github.com/agencyops/credcore/internal/clock"
	"github.com/agencyops/credcore/internal/config"
	"github.com/agencyops/credcore/internal/migration"
	"github.com/agencyops/credcore/internal/observability"
	"github.com/agencyops/credcore/internal/scheduler"
	"github.com/agencyops/credcore/internal/server"
	"github.com/agencyops/credcore/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
