package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/matchhub/internal/audit/domain"
	"github.com/smallbiznis/matchhub/internal/audit/repository"
	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/migration/migrationtest"
	obscontext "github.com/smallbiznis/matchhub/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(epoch)
	return NewService(Params{
		Store: migrationtest.OpenSQLite(t),
		Log:   zap.NewNop(),
		Clock: clk,
		Repo:  repository.Provide(),
	}), clk
}

func TestAuditLogResolvesActor(t *testing.T) {
	svc, _ := newTestService(t)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActorID(ctx, "42")
	require.NoError(t, svc.AuditLog(ctx, nil, "user.ban", "user", "9", map[string]any{"reason": "spam"}))
	require.NoError(t, svc.AuditLog(context.Background(), nil, "campaign.expired", "", "", nil))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)

	system := resp.AuditLogs[0]
	assert.Equal(t, auditdomain.ActorTypeSystem, system.ActorType)
	assert.Nil(t, system.ActorID)
	assert.Equal(t, "unknown", system.TargetType)
	assert.Nil(t, system.TargetID)

	banned := resp.AuditLogs[1]
	assert.Equal(t, auditdomain.ActorTypeUser, banned.ActorType)
	require.NotNil(t, banned.ActorID)
	assert.Equal(t, int64(42), *banned.ActorID)
	require.NotNil(t, banned.RequestID)
	assert.Equal(t, "req-1", *banned.RequestID)
	assert.Equal(t, "spam", banned.Metadata["reason"])
	assert.True(t, banned.CreatedAt.Equal(epoch))
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)
	require.ErrorIs(t, svc.AuditLog(context.Background(), nil, " ", "user", "1", nil), auditdomain.ErrInvalidAction)
}

func TestListPagesAndFilters(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	actor := int64(1)
	for i := 0; i < 5; i++ {
		clk.Advance(time.Minute)
		require.NoError(t, svc.AuditLog(ctx, &actor, "user.ban", "user", "2", nil))
	}
	require.NoError(t, svc.AuditLog(ctx, &actor, "user.unban", "user", "2", nil))

	page, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "user.ban", PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 3)
	require.NotZero(t, page.NextCursor)

	next, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "user.ban", PageSize: 3, BeforeID: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, next.AuditLogs, 2)
	assert.Zero(t, next.NextCursor)

	start := epoch.Add(time.Hour)
	end := epoch
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	require.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
