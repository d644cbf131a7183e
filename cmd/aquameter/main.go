package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tidewatch/aquameter/internal/clock"
	"github.com/tidewatch/aquameter/internal/config"
	"github.com/tidewatch/aquameter/internal/liveness"
	"github.com/tidewatch/aquameter/internal/logger"
	"github.com/tidewatch/aquameter/internal/migration"
	"github.com/tidewatch/aquameter/internal/server"
	"github.com/tidewatch/aquameter/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		liveness.Module,
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
