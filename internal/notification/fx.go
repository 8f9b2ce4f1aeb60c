package notification

import (
	"context"
	"time"

	"github.com/smallbiznis/matchhub/internal/config"
	"github.com/smallbiznis/matchhub/internal/notification/domain"
	"github.com/smallbiznis/matchhub/internal/notification/repository"
	"github.com/smallbiznis/matchhub/internal/notification/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(log *zap.Logger) domain.Delivery { return service.NewLogDelivery(log) }),
	fx.Provide(provideDebouncer),
	fx.Provide(func(d *service.Debouncer) domain.Notifier { return d }),
)

func provideDebouncer(lc fx.Lifecycle, svc domain.Service, delivery domain.Delivery, policy *config.PolicyHolder, log *zap.Logger) *service.Debouncer {
	d := service.NewDebouncer(svc, delivery, func() time.Duration {
		return policy.Get().Notification.Debounce
	}, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			d.Stop(ctx)
			return nil
		},
	})
	return d
}
