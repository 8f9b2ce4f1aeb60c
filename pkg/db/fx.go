package db

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

var Module = fx.Module("db",
	fx.Provide(provideStore),
)

type storeParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Config     Config
	Log        *zap.Logger
	GormLogger gormlogger.Interface `optional:"true"`
}

func provideStore(p storeParams) (Store, error) {
	store, err := Open(context.Background(), p.Config, Options{Logger: p.Log, GormLogger: p.GormLogger})
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}
