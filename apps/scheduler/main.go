package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/matchhub/internal/campaign"
	"github.com/smallbiznis/matchhub/internal/chat"
	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/config"
	"github.com/smallbiznis/matchhub/internal/ledger"
	"github.com/smallbiznis/matchhub/internal/migration"
	"github.com/smallbiznis/matchhub/internal/notification"
	"github.com/smallbiznis/matchhub/internal/observability"
	"github.com/smallbiznis/matchhub/internal/profile"
	"github.com/smallbiznis/matchhub/internal/ratelimit"
	"github.com/smallbiznis/matchhub/internal/scheduler"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/fx"
)

// The standalone worker runs the sweep jobs without the HTTP API. Several
// workers may run side by side when redis is configured; each job tick is
// taken by one of them.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Domain services required by scheduler
		profile.Module,
		notification.Module,
		ledger.Module,
		campaign.Module,
		chat.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
