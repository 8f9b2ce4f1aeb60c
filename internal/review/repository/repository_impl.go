package repository

import (
	"context"
	"fmt"

	"github.com/smallbiznis/matchhub/internal/review/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx db.Tx, review *domain.Review) error {
	id, err := tx.Insert(ctx,
		`INSERT INTO reviews (campaign_id, from_user_id, to_user_id, rating, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		review.CampaignID, review.FromUserID, review.ToUserID, review.Rating, review.Comment, review.CreatedAt,
	)
	if err != nil {
		return err
	}
	review.ID = id
	return nil
}

func (r *repo) ListByCampaign(ctx context.Context, tx db.Tx, campaignID int64) ([]domain.Review, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, campaign_id, from_user_id, to_user_id, rating, comment, created_at
		 FROM reviews WHERE campaign_id = ? ORDER BY id`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Review, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Review{
			ID:         row.Int64("id"),
			CampaignID: row.Int64("campaign_id"),
			FromUserID: row.Int64("from_user_id"),
			ToUserID:   row.Int64("to_user_id"),
			Rating:     row.Int("rating"),
			Comment:    row.String("comment"),
			CreatedAt:  row.Time("created_at"),
		})
	}
	return out, nil
}

func (r *repo) ApplyRating(ctx context.Context, tx db.Tx, target domain.Target, userID int64, rating int) (int64, error) {
	var table string
	switch target {
	case domain.TargetProducer:
		table = "producer_profiles"
	case domain.TargetRequester:
		table = "requester_profiles"
	default:
		return 0, fmt.Errorf("unknown rating target %q", target)
	}
	return tx.Exec(ctx,
		`UPDATE `+table+`
		 SET rating = (rating * rating_count + ?) / (rating_count + 1),
		     rating_count = rating_count + 1
		 WHERE user_id = ?`,
		float64(rating), userID,
	)
}
