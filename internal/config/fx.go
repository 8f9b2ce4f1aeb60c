package config

import (
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewPolicyHolder,
		func(cfg Config) db.Config { return cfg.DB },
	),
)
