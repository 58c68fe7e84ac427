package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/governa/internal/clock"
	"github.com/smallbiznis/governa/internal/config"
	"github.com/smallbiznis/governa/internal/logger"
	"github.com/smallbiznis/governa/internal/migration"
	obsmetrics "github.com/smallbiznis/governa/internal/observability/metrics"
	obstracing "github.com/smallbiznis/governa/internal/observability/tracing"
	"github.com/smallbiznis/governa/internal/server"
	"github.com/smallbiznis/governa/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		obsmetrics.Module,
		obstracing.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
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
