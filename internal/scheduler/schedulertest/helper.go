// Package schedulertest moves stored timestamps so sweep jobs can be driven
// without waiting for real deadlines.
package schedulertest

import (
	"context"
	"time"

	"github.com/smallbiznis/matchhub/pkg/db"
)

// TimeAccelerator rewrites campaign deadlines and chat creation times.
type TimeAccelerator struct {
	store db.Store
}

func NewTimeAccelerator(store db.Store) *TimeAccelerator {
	return &TimeAccelerator{store: store}
}

// FastForwardDeadline moves one campaign's deadline to just before now.
func (ta *TimeAccelerator) FastForwardDeadline(ctx context.Context, campaignID int64, now time.Time) error {
	return ta.exec(ctx,
		`UPDATE campaigns SET deadline = ? WHERE id = ?`,
		now.Add(-time.Minute), campaignID,
	)
}

// FastForwardAllOpen moves the deadline of every open campaign to just
// before now and reports how many rows changed.
func (ta *TimeAccelerator) FastForwardAllOpen(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := ta.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		n, err = tx.Exec(ctx,
			`UPDATE campaigns SET deadline = ? WHERE status = ?`,
			now.Add(-time.Minute), "open",
		)
		return err
	})
	return n, err
}

// AgeChannel backdates a chat channel so its confirmation window has passed.
func (ta *TimeAccelerator) AgeChannel(ctx context.Context, channelID int64, age time.Duration, now time.Time) error {
	return ta.exec(ctx,
		`UPDATE chat_channels SET created_at = ? WHERE id = ?`,
		now.Add(-age), channelID,
	)
}

func (ta *TimeAccelerator) exec(ctx context.Context, stmt string, args ...any) error {
	return ta.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		_, err := tx.Exec(ctx, stmt, args...)
		return err
	})
}
