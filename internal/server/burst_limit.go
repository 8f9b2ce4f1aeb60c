package server

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/matchhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchhub/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	burstRate  = 5.0
	burstSize  = 20
	burstScope = "matchhub:burst:"
)

// burstLimitError carries the bucket's refill estimate to the Retry-After
// header.
type burstLimitError struct {
	retryAfter time.Duration
}

func (e *burstLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.retryAfter)
}

func (e *burstLimitError) Unwrap() error { return ErrRateLimited }

// BurstGuard caps write bursts per user across every instance sharing the
// redis token bucket. Without redis it lets everything through and the
// per-process creation limiter still applies.
func (s *Server) BurstGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.bucket.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)
		key := burstScope + strconv.FormatInt(actorID(c), 10)

		res, err := s.bucket.Allow(ctx, key, burstRate, burstSize)
		if err != nil {
			// redis trouble must not take writes down with it
			logger.FromContext(ctx).Warn("burst guard check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			denyBurst(c, endpoint, res.RetryAfter, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func denyBurst(c *gin.Context, endpoint string, retryAfter time.Duration, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("burst limit exceeded",
		zap.String("endpoint", endpoint),
		zap.Duration("retry_after", retryAfter),
	)
	recordRateLimitDenied(ctx, endpoint, metrics)
	AbortWithError(c, &burstLimitError{retryAfter: retryAfter})
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, "burst:"+endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, "burst:"+endpoint)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
