package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/matchhub/internal/audit"
	"github.com/smallbiznis/matchhub/internal/authorization"
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
	"github.com/smallbiznis/matchhub/internal/review"
	"github.com/smallbiznis/matchhub/internal/scheduler"
	"github.com/smallbiznis/matchhub/internal/server"
	"github.com/smallbiznis/matchhub/internal/session"
	"github.com/smallbiznis/matchhub/pkg/db"
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
		ratelimit.Module,

		profile.Module,
		notification.Module,
		ledger.Module,
		campaign.Module,
		chat.Module,
		review.Module,
		session.Module,
		audit.Module,
		authorization.Module,

		scheduler.Module,
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
