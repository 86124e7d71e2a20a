package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/travelmate/internal/allowance"
	"github.com/smallbiznis/travelmate/internal/clock"
	"github.com/smallbiznis/travelmate/internal/config"
	"github.com/smallbiznis/travelmate/internal/customer"
	"github.com/smallbiznis/travelmate/internal/logger"
	"github.com/smallbiznis/travelmate/internal/metrics"
	"github.com/smallbiznis/travelmate/internal/migration"
	"github.com/smallbiznis/travelmate/internal/ownership"
	"github.com/smallbiznis/travelmate/internal/project"
	"github.com/smallbiznis/travelmate/internal/receipt"
	"github.com/smallbiznis/travelmate/internal/retention"
	"github.com/smallbiznis/travelmate/internal/server"
	"github.com/smallbiznis/travelmate/internal/snapshot"
	"github.com/smallbiznis/travelmate/internal/storage"
	"github.com/smallbiznis/travelmate/internal/trip"
	"github.com/smallbiznis/travelmate/internal/validation"
	"github.com/smallbiznis/travelmate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		storage.Module,
		migration.Module,

		// Functional domains
		customer.Module,
		project.Module,
		ownership.Module,
		trip.Module,
		receipt.Module,
		validation.Module,
		allowance.Module,
		snapshot.Module,
		retention.Module,

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
