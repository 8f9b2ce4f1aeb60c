package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/matchhub/internal/notification/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Bump(ctx context.Context, tx db.Tx, userID int64, kind domain.Kind, delta int64, now time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO notification_counters (user_id, kind, unseen_count, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, kind) DO UPDATE
		 SET unseen_count = notification_counters.unseen_count + excluded.unseen_count,
		     updated_at = excluded.updated_at`,
		userID, string(kind), delta, now,
	)
	return err
}

func (r *repo) Reset(ctx context.Context, tx db.Tx, userID int64, kind domain.Kind, now time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE notification_counters SET unseen_count = ?, updated_at = ? WHERE user_id = ? AND kind = ?`,
		0, now, userID, string(kind),
	)
	return err
}

func (r *repo) Get(ctx context.Context, tx db.Tx, userID int64, kind domain.Kind) (*domain.Counter, error) {
	row, err := tx.QueryRow(ctx,
		`SELECT user_id, kind, unseen_count, last_ref, updated_at
		 FROM notification_counters WHERE user_id = ? AND kind = ?`,
		userID, string(kind),
	)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Counter{
		UserID:      row.Int64("user_id"),
		Kind:        domain.Kind(row.String("kind")),
		UnseenCount: row.Int64("unseen_count"),
		LastRef:     row.String("last_ref"),
		UpdatedAt:   row.Time("updated_at"),
	}, nil
}

func (r *repo) SetLastRef(ctx context.Context, tx db.Tx, userID int64, kind domain.Kind, ref string, now time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO notification_counters (user_id, kind, unseen_count, last_ref, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, kind) DO UPDATE
		 SET last_ref = excluded.last_ref, updated_at = excluded.updated_at`,
		userID, string(kind), 0, ref, now,
	)
	return err
}
