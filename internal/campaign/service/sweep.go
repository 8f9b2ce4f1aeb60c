package service

import (
	"context"
	"time"

	"github.com/smallbiznis/matchhub/internal/campaign/domain"
	obslogger "github.com/smallbiznis/matchhub/internal/observability/logger"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/zap"
)

// SweepExpired moves every selectable campaign whose deadline has passed to
// expired and rejects its active offers. Each campaign is its own unit of
// work guarded on status, so a campaign a racing selection already claimed
// is skipped and never reported.
func (s *Service) SweepExpired(ctx context.Context) ([]domain.ExpiredCampaign, error) {
	ctx, span := s.tracer.Start(ctx, "campaign.SweepExpired")
	defer span.End()

	batch := s.policy.Get().Sweep.BatchSize
	now := s.clock.Now()
	var out []domain.ExpiredCampaign

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var ids []int64
		if err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
			var err error
			ids, err = s.repo.ListExpirable(ctx, tx, now, batch)
			return err
		}); err != nil {
			return out, err
		}

		for _, id := range ids {
			expired, ok, err := s.expireOne(ctx, id, now)
			if err != nil {
				return out, err
			}
			if ok {
				out = append(out, expired)
			}
		}
		if len(ids) < batch {
			break
		}
	}

	if len(out) > 0 {
		s.metrics.RecordCampaignsExpired(ctx, len(out))
		obslogger.WithContext(ctx, s.log).Info("campaigns expired", zap.Int("count", len(out)))
	}
	return out, nil
}

func (s *Service) expireOne(ctx context.Context, campaignID int64, now time.Time) (domain.ExpiredCampaign, bool, error) {
	var expired domain.ExpiredCampaign
	var won bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		n, err := s.repo.Expire(ctx, tx, campaignID, now)
		if err != nil || n == 0 {
			return err
		}
		producers, err := s.repo.ActiveOfferProducerUserIDs(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if _, err := s.repo.RejectActiveOffers(ctx, tx, campaignID); err != nil {
			return err
		}
		participants, err := s.repo.FindParticipants(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		expired = domain.ExpiredCampaign{
			CampaignID:      campaignID,
			RequesterUserID: participants.RequesterUserID,
			ProducerUserIDs: producers,
			Title:           participants.Title,
		}
		won = true
		return nil
	})
	return expired, won, err
}
