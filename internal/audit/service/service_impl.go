package service

import (
	"context"
	"strconv"
	"strings"

	auditdomain "github.com/smallbiznis/matchhub/internal/audit/domain"
	"github.com/smallbiznis/matchhub/internal/clock"
	obscontext "github.com/smallbiznis/matchhub/internal/observability/context"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	Store db.Store
	Log   *zap.Logger
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	store db.Store
	log   *zap.Logger
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("audit.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, actorID *int64, action string, targetType string, targetID string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	actorType, resolvedActorID := resolveActor(ctx, actorID)
	entry := auditdomain.AuditLog{
		ActorType:  actorType,
		ActorID:    resolvedActorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   normalize(targetID),
		Metadata:   payload,
		RequestID:  normalize(obscontext.RequestIDFromContext(ctx)),
		CreatedAt:  s.clock.Now().UTC(),
	}

	if err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return s.repo.Insert(ctx, tx, &entry)
	}); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

// List pages newest first; NextCursor is the id to pass as BeforeID for the
// following page.
func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	if req.BeforeID < 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidCursor
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var items []auditdomain.AuditLog
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		items, err = s.repo.List(ctx, tx, auditdomain.ListFilter{
			Action:     req.Action,
			TargetType: req.TargetType,
			TargetID:   req.TargetID,
			ActorType:  req.ActorType,
			StartAt:    req.StartAt,
			EndAt:      req.EndAt,
			BeforeID:   req.BeforeID,
			Limit:      pageSize,
		})
		return err
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: items}
	if len(items) > pageSize {
		resp.AuditLogs = items[:pageSize]
		resp.NextCursor = resp.AuditLogs[pageSize-1].ID
	}
	return resp, nil
}

func resolveActor(ctx context.Context, actorID *int64) (auditdomain.ActorType, *int64) {
	if actorID != nil && *actorID > 0 {
		return auditdomain.ActorTypeUser, actorID
	}
	if raw := obscontext.ActorIDFromContext(ctx); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			return auditdomain.ActorTypeUser, &parsed
		}
	}
	return auditdomain.ActorTypeSystem, nil
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
