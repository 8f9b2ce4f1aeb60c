package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/matchhub/pkg/db"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

type AuditLog struct {
	ID         int64          `json:"id"`
	ActorType  ActorType      `json:"actor_type"`
	ActorID    *int64         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   *string        `json:"target_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RequestID  *string        `json:"request_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	BeforeID   int64
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, tx db.Tx, entry *AuditLog) error
	List(ctx context.Context, tx db.Tx, filter ListFilter) ([]AuditLog, error)
}

type ListAuditLogRequest struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	BeforeID   int64
	PageSize   int
}

type ListAuditLogResponse struct {
	AuditLogs  []AuditLog `json:"audit_logs"`
	NextCursor int64      `json:"next_cursor,omitempty"`
}

type Service interface {
	// AuditLog records action on target. A nil actorID falls back to the
	// actor carried by ctx, and to the system actor after that.
	AuditLog(ctx context.Context, actorID *int64, action string, targetType string, targetID string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidCursor    = errors.New("invalid_cursor")
)
