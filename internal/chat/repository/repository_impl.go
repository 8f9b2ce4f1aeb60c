package repository

import (
	"context"
	"errors"
	"time"

	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	"github.com/smallbiznis/matchhub/internal/chat/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const channelColumns = `id, campaign_id, offer_id, requester_user_id, producer_user_id,
	producer_confirmed, producer_confirmed_at, created_at, last_message_at`

func (r *repo) Insert(ctx context.Context, tx db.Tx, channel *domain.Channel) error {
	id, err := tx.Insert(ctx,
		`INSERT INTO chat_channels (campaign_id, offer_id, requester_user_id, producer_user_id,
			producer_confirmed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		channel.CampaignID, channel.OfferID, channel.RequesterUserID, channel.ProducerUserID,
		false, channel.CreatedAt,
	)
	if err != nil {
		return err
	}
	channel.ID = id
	return nil
}

func (r *repo) Find(ctx context.Context, tx db.Tx, id int64) (*domain.Channel, error) {
	return r.find(ctx, tx, `SELECT `+channelColumns+` FROM chat_channels WHERE id = ?`, id)
}

func (r *repo) FindByPair(ctx context.Context, tx db.Tx, campaignID, offerID int64) (*domain.Channel, error) {
	return r.find(ctx, tx,
		`SELECT `+channelColumns+` FROM chat_channels WHERE campaign_id = ? AND offer_id = ?`,
		campaignID, offerID,
	)
}

func (r *repo) find(ctx context.Context, tx db.Tx, stmt string, args ...any) (*domain.Channel, error) {
	row, err := tx.QueryRow(ctx, stmt, args...)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	channel := &domain.Channel{
		ID:                row.Int64("id"),
		CampaignID:        row.Int64("campaign_id"),
		OfferID:           row.Int64("offer_id"),
		RequesterUserID:   row.Int64("requester_user_id"),
		ProducerUserID:    row.Int64("producer_user_id"),
		ProducerConfirmed: row.Bool("producer_confirmed"),
		CreatedAt:         row.Time("created_at"),
	}
	if at := row.NullTime("producer_confirmed_at"); at.Valid {
		t := at.Time
		channel.ProducerConfirmedAt = &t
	}
	if at := row.NullTime("last_message_at"); at.Valid {
		t := at.Time
		channel.LastMessageAt = &t
	}
	return channel, nil
}

func (r *repo) Confirm(ctx context.Context, tx db.Tx, id int64, now, notBefore time.Time) (int64, error) {
	return tx.Exec(ctx,
		`UPDATE chat_channels SET producer_confirmed = ?, producer_confirmed_at = ?
		 WHERE id = ? AND producer_confirmed = ? AND created_at >= ?`,
		true, now, id, false, notBefore,
	)
}

func (r *repo) Touch(ctx context.Context, tx db.Tx, id int64, now time.Time) (int64, error) {
	return tx.Exec(ctx, `UPDATE chat_channels SET last_message_at = ? WHERE id = ?`, now, id)
}

func (r *repo) ListLapsed(ctx context.Context, tx db.Tx, cutoff time.Time, limit int) ([]domain.LapsedSelection, error) {
	args := []any{false, cutoff, string(campaigndomain.OfferStatusSelected)}
	args = append(args, campaigndomain.StatusArgs(campaigndomain.ReleasableStatuses)...)
	args = append(args, limit)
	rows, err := tx.Query(ctx,
		`SELECT ch.id, ch.campaign_id, ch.offer_id, o.producer_id,
			ch.requester_user_id, ch.producer_user_id
		 FROM chat_channels ch
		 JOIN offers o ON o.id = ch.offer_id
		 JOIN campaigns c ON c.id = ch.campaign_id
		 WHERE ch.producer_confirmed = ? AND ch.created_at < ?
		   AND o.status = ?
		   AND c.selected_producer_id = o.producer_id
		   AND c.status IN (`+db.Placeholders(len(campaigndomain.ReleasableStatuses))+`)
		 ORDER BY ch.created_at, ch.id
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.LapsedSelection, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.LapsedSelection{
			ChannelID:       row.Int64("id"),
			CampaignID:      row.Int64("campaign_id"),
			OfferID:         row.Int64("offer_id"),
			ProducerID:      row.Int64("producer_id"),
			RequesterUserID: row.Int64("requester_user_id"),
			ProducerUserID:  row.Int64("producer_user_id"),
		})
	}
	return out, nil
}

func (r *repo) ListUnopened(ctx context.Context, tx db.Tx, limit int) ([]int64, error) {
	rows, err := tx.Query(ctx,
		`SELECT o.id
		 FROM offers o
		 JOIN campaigns c ON c.id = o.campaign_id
		 LEFT JOIN chat_channels ch ON ch.campaign_id = o.campaign_id AND ch.offer_id = o.id
		 WHERE o.status = ? AND c.status = ?
		   AND c.selected_producer_id = o.producer_id
		   AND ch.id IS NULL
		 ORDER BY c.updated_at, o.id
		 LIMIT ?`,
		string(campaigndomain.OfferStatusSelected), string(campaigndomain.StatusProducerSelected), limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Int64("id"))
	}
	return out, nil
}
