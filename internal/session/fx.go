package session

import "go.uber.org/fx"

var Module = fx.Module("session.store",
	fx.Provide(provideStore),
)
