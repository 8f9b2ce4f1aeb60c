package ratelimit

import (
	"context"
	"time"

	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewRedisClient,
		NewLocker,
		NewTokenBucket,
		provideSlidingWindow,
		func(l *SlidingWindow) Limiter { return l },
	),
)

func provideSlidingWindow(lc fx.Lifecycle, clk clock.Clock, policy *config.PolicyHolder) *SlidingWindow {
	l := NewReloadingSlidingWindow(clk, func() (time.Duration, int) {
		p := policy.Get().RateLimit
		return p.Window, p.SweepEvery
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			l.Reset()
			return nil
		},
	})
	return l
}

