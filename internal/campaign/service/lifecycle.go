package service

import (
	"context"

	"github.com/smallbiznis/matchhub/internal/campaign/domain"
	obslogger "github.com/smallbiznis/matchhub/internal/observability/logger"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/zap"
)

// Cancel is allowed to the owning requester while no producer is committed.
func (s *Service) Cancel(ctx context.Context, requesterUserID, campaignID int64) (domain.Campaign, error) {
	if campaignID <= 0 {
		return domain.Campaign{}, domain.ErrInvalidID
	}
	now := s.clock.Now()
	var campaign *domain.Campaign
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		participants, err := s.repo.FindParticipants(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if participants == nil {
			return domain.ErrCampaignNotFound
		}
		if participants.RequesterUserID != requesterUserID {
			return domain.ErrForbidden
		}

		n, err := s.repo.Cancel(ctx, tx, campaignID, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrInvalidTransition
		}
		campaign, err = s.repo.FindCampaign(ctx, tx, campaignID)
		return err
	})
	if err != nil {
		return domain.Campaign{}, err
	}
	obslogger.WithCampaign(obslogger.WithContext(ctx, s.log), campaignID).Info("campaign cancelled")
	return *campaign, nil
}

// MarkComplete records the caller's side. The first mark completes the
// campaign, which unlocks reviews for both sides; repeating a mark is a no-op.
func (s *Service) MarkComplete(ctx context.Context, userID, campaignID int64) (domain.Campaign, error) {
	if campaignID <= 0 {
		return domain.Campaign{}, domain.ErrInvalidID
	}
	now := s.clock.Now()
	var campaign *domain.Campaign
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		participants, err := s.repo.FindParticipants(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if participants == nil {
			return domain.ErrCampaignNotFound
		}
		side, ok := participants.SideOf(userID)
		if !ok {
			return domain.ErrForbidden
		}

		if _, err := s.repo.MarkSideComplete(ctx, tx, campaignID, side, now); err != nil {
			return err
		}
		campaign, err = s.repo.FindCampaign(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if side == domain.SideRequester && !campaign.RequesterCompleted ||
			side == domain.SideProducer && !campaign.ProducerCompleted {
			return domain.ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return domain.Campaign{}, err
	}
	obslogger.WithContext(ctx, s.log).Info("campaign completion marked",
		zap.Int64("campaign_id", campaignID),
		zap.Int64("user_id", userID),
	)
	return *campaign, nil
}

// StartWork lets the selected producer move a shared-contact campaign into
// in_progress.
func (s *Service) StartWork(ctx context.Context, producerUserID, campaignID int64) (domain.Campaign, error) {
	if campaignID <= 0 {
		return domain.Campaign{}, domain.ErrInvalidID
	}
	now := s.clock.Now()
	var campaign *domain.Campaign
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		participants, err := s.repo.FindParticipants(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if participants == nil {
			return domain.ErrCampaignNotFound
		}
		if participants.ProducerUserID == 0 || participants.ProducerUserID != producerUserID {
			return domain.ErrForbidden
		}
		n, err := s.repo.MarkInProgress(ctx, tx, campaignID, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrInvalidTransition
		}
		campaign, err = s.repo.FindCampaign(ctx, tx, campaignID)
		return err
	})
	if err != nil {
		return domain.Campaign{}, err
	}
	return *campaign, nil
}
