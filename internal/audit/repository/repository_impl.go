package repository

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/smallbiznis/matchhub/internal/audit/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx db.Tx, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	if entry.Metadata == nil {
		metadata = []byte("{}")
	}
	id, err := tx.Insert(ctx,
		`INSERT INTO audit_logs (
			actor_type, actor_id, action, target_type, target_id,
			metadata, request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(entry.ActorType),
		nullableInt(entry.ActorID),
		entry.Action,
		entry.TargetType,
		nullableString(entry.TargetID),
		string(metadata),
		nullableString(entry.RequestID),
		entry.CreatedAt,
	)
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func (r *repo) List(ctx context.Context, tx db.Tx, filter domain.ListFilter) ([]domain.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	if action := strings.TrimSpace(filter.Action); action != "" {
		where = append(where, "action = ?")
		args = append(args, action)
	}
	if targetType := strings.TrimSpace(filter.TargetType); targetType != "" {
		where = append(where, "target_type = ?")
		args = append(args, targetType)
	}
	if targetID := strings.TrimSpace(filter.TargetID); targetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, targetID)
	}
	if actorType := strings.TrimSpace(filter.ActorType); actorType != "" {
		where = append(where, "actor_type = ?")
		args = append(args, actorType)
	}
	if filter.StartAt != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		where = append(where, "created_at <= ?")
		args = append(args, filter.EndAt.UTC())
	}
	if filter.BeforeID > 0 {
		where = append(where, "id < ?")
		args = append(args, filter.BeforeID)
	}

	stmt := `SELECT id, actor_type, actor_id, action, target_type, target_id, metadata, request_id, created_at
		FROM audit_logs`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY id DESC"
	if filter.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, filter.Limit+1)
	}

	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		entry := domain.AuditLog{
			ID:         row.Int64("id"),
			ActorType:  domain.ActorType(row.String("actor_type")),
			Action:     row.String("action"),
			TargetType: row.String("target_type"),
			CreatedAt:  row.Time("created_at"),
		}
		if v := row.NullInt64("actor_id"); v.Valid {
			id := v.Int64
			entry.ActorID = &id
		}
		if v := row.NullString("target_id"); v.Valid {
			target := v.String
			entry.TargetID = &target
		}
		if v := row.NullString("request_id"); v.Valid {
			requestID := v.String
			entry.RequestID = &requestID
		}
		if raw := row.String("metadata"); raw != "" && raw != "{}" {
			if err := json.Unmarshal([]byte(raw), &entry.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
