package migration

import (
	"context"

	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(lc fx.Lifecycle, store db.Store, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return RunMigrations(ctx, store, log)
			},
		})
	}),
)
