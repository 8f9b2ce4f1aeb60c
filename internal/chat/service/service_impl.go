package service

import (
	"context"
	"errors"
	"time"

	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	"github.com/smallbiznis/matchhub/internal/chat/domain"
	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/config"
	ledgerdomain "github.com/smallbiznis/matchhub/internal/ledger/domain"
	obslogger "github.com/smallbiznis/matchhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchhub/internal/observability/metrics"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store     db.Store
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Campaigns campaigndomain.Repository
	Ledger    ledgerdomain.Repository
	Policy    *config.PolicyHolder

	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	store     db.Store
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	campaigns campaigndomain.Repository
	ledger    ledgerdomain.Repository
	policy    *config.PolicyHolder
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		store:     p.Store,
		log:       p.Log.Named("chat.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		campaigns: p.Campaigns,
		ledger:    p.Ledger,
		policy:    p.Policy,
		metrics:   p.ObsMetrics,
	}
}

func (s *Service) window() time.Duration {
	return s.policy.Get().Chat.ConfirmationWindow
}

func (s *Service) OpenForSelection(ctx context.Context, offerID int64) (domain.Channel, error) {
	if offerID <= 0 {
		return domain.Channel{}, domain.ErrInvalidID
	}
	now := s.clock.Now()
	var channel *domain.Channel
	var opened bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		target, err := s.campaigns.FindSelectionTarget(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if target == nil {
			return campaigndomain.ErrOfferNotFound
		}
		if target.OfferStatus != campaigndomain.OfferStatusSelected {
			return domain.ErrNotSelected
		}
		channel, err = s.repo.FindByPair(ctx, tx, target.CampaignID, target.OfferID)
		if err != nil || channel != nil {
			return err
		}
		if !target.CampaignStatus.In(campaigndomain.ReleasableStatuses) {
			return domain.ErrNotSelected
		}

		channel = &domain.Channel{
			CampaignID:      target.CampaignID,
			OfferID:         target.OfferID,
			RequesterUserID: target.RequesterUserID,
			ProducerUserID:  target.ProducerUserID,
			CreatedAt:       now,
		}
		if err := s.repo.Insert(ctx, tx, channel); err != nil {
			return err
		}
		// Already contact_shared is fine; the channel is what we needed.
		if _, err := s.campaigns.MarkContactShared(ctx, tx, target.CampaignID, now); err != nil {
			return err
		}
		campaignID, offerID := target.CampaignID, target.OfferID
		opened = true
		return s.ledger.Insert(ctx, tx, &ledgerdomain.Transaction{
			UserID:     target.RequesterUserID,
			CampaignID: &campaignID,
			OfferID:    &offerID,
			Type:       ledgerdomain.TypeContactUnlock,
			Status:     ledgerdomain.StatusRecorded,
			CreatedAt:  now,
		})
	})
	if db.IsDuplicateKeyErr(err) {
		// A concurrent open won the unique (campaign, offer) pair.
		return s.openExisting(ctx, offerID)
	}
	if err != nil {
		return domain.Channel{}, err
	}
	if opened {
		s.metrics.RecordChatOpened(ctx)
		log := obslogger.WithOffer(obslogger.WithContext(ctx, s.log), channel.CampaignID, channel.OfferID)
		log.Info("chat channel opened", zap.Int64("channel_id", channel.ID))
	}
	return *channel, nil
}

// OpenPending lets a requester finish a selection whose channel was never
// opened, e.g. when the process stopped right after the selection committed.
// A selection that already has its channel is not pending.
func (s *Service) OpenPending(ctx context.Context, offerID, requesterUserID int64) (domain.Channel, bool, error) {
	if offerID <= 0 {
		return domain.Channel{}, false, domain.ErrInvalidID
	}
	var pending bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		target, err := s.campaigns.FindSelectionTarget(ctx, tx, offerID)
		if err != nil || target == nil {
			return err
		}
		if requesterUserID != 0 && target.RequesterUserID != requesterUserID {
			return nil
		}
		if target.OfferStatus != campaigndomain.OfferStatusSelected ||
			target.CampaignStatus != campaigndomain.StatusProducerSelected {
			return nil
		}
		channel, err := s.repo.FindByPair(ctx, tx, target.CampaignID, target.OfferID)
		if err != nil {
			return err
		}
		pending = channel == nil
		return nil
	})
	if err != nil || !pending {
		return domain.Channel{}, false, err
	}
	channel, err := s.OpenForSelection(ctx, offerID)
	if err != nil {
		return domain.Channel{}, false, err
	}
	return channel, true, nil
}

// OpenMissing opens the channels that selections left behind. The
// confirmation window of such a channel starts when it is opened here.
func (s *Service) OpenMissing(ctx context.Context) ([]domain.Channel, error) {
	batch := s.policy.Get().Sweep.BatchSize

	var out []domain.Channel
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var offerIDs []int64
		if err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
			var err error
			offerIDs, err = s.repo.ListUnopened(ctx, tx, batch)
			return err
		}); err != nil {
			return out, err
		}

		opened := 0
		for _, offerID := range offerIDs {
			channel, err := s.OpenForSelection(ctx, offerID)
			if errors.Is(err, domain.ErrNotSelected) {
				// Released or moved on since it was listed.
				continue
			}
			if err != nil {
				return out, err
			}
			out = append(out, channel)
			opened++
		}
		if len(offerIDs) < batch || opened == 0 {
			break
		}
	}

	if len(out) > 0 {
		obslogger.WithContext(ctx, s.log).Warn("missing chat channels opened", zap.Int("count", len(out)))
	}
	return out, nil
}

func (s *Service) openExisting(ctx context.Context, offerID int64) (domain.Channel, error) {
	var channel *domain.Channel
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		offer, err := s.campaigns.FindOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer == nil {
			return campaigndomain.ErrOfferNotFound
		}
		channel, err = s.repo.FindByPair(ctx, tx, offer.CampaignID, offer.ID)
		return err
	})
	if err != nil {
		return domain.Channel{}, err
	}
	if channel == nil {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return *channel, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Channel, error) {
	if id <= 0 {
		return domain.Channel{}, domain.ErrInvalidID
	}
	var channel *domain.Channel
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		channel, err = s.repo.Find(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Channel{}, err
	}
	if channel == nil {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return *channel, nil
}

// Confirm records the producer's confirmation. Confirming twice returns the
// channel unchanged; confirming after the deadline fails even when the lapse
// sweep has not run yet.
func (s *Service) Confirm(ctx context.Context, channelID, producerUserID int64) (domain.Channel, error) {
	if channelID <= 0 {
		return domain.Channel{}, domain.ErrInvalidID
	}
	now := s.clock.Now()
	window := s.window()
	var channel *domain.Channel
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		channel, err = s.repo.Find(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if channel == nil {
			return domain.ErrChannelNotFound
		}
		if channel.ProducerUserID != producerUserID {
			return domain.ErrForbidden
		}
		if channel.ProducerConfirmed {
			return nil
		}
		if channel.Lapsed(now, window) {
			return domain.ErrConfirmationLapsed
		}
		if _, err := s.repo.Confirm(ctx, tx, channelID, now, now.Add(-window)); err != nil {
			return err
		}
		channel, err = s.repo.Find(ctx, tx, channelID)
		return err
	})
	if err != nil {
		return domain.Channel{}, err
	}
	obslogger.WithContext(ctx, s.log).Info("producer confirmed",
		zap.Int64("channel_id", channelID),
		zap.Int64("campaign_id", channel.CampaignID),
	)
	return *channel, nil
}

// Touch records activity on the channel by either participant.
func (s *Service) Touch(ctx context.Context, channelID, userID int64) (domain.Channel, error) {
	if channelID <= 0 {
		return domain.Channel{}, domain.ErrInvalidID
	}
	now := s.clock.Now()
	var channel *domain.Channel
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		channel, err = s.repo.Find(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if channel == nil {
			return domain.ErrChannelNotFound
		}
		if userID != channel.RequesterUserID && userID != channel.ProducerUserID {
			return domain.ErrForbidden
		}
		if _, err := s.repo.Touch(ctx, tx, channelID, now); err != nil {
			return err
		}
		channel.LastMessageAt = &now
		return nil
	})
	if err != nil {
		return domain.Channel{}, err
	}
	return *channel, nil
}

func (s *Service) Deadline(channel domain.Channel) time.Time {
	return channel.Deadline(s.window())
}

func (s *Service) IsLapsed(channel domain.Channel) bool {
	return channel.Lapsed(s.clock.Now(), s.window())
}

func (s *Service) LapseExpired(ctx context.Context) ([]domain.LapsedSelection, error) {
	policy := s.policy.Get()
	now := s.clock.Now()
	cutoff := now.Add(-policy.Chat.ConfirmationWindow)
	batch := policy.Sweep.BatchSize

	var out []domain.LapsedSelection
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var candidates []domain.LapsedSelection
		if err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
			var err error
			candidates, err = s.repo.ListLapsed(ctx, tx, cutoff, batch)
			return err
		}); err != nil {
			return out, err
		}

		released := 0
		for _, c := range candidates {
			var n int64
			err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
				var err error
				n, err = s.campaigns.ReleaseSelection(ctx, tx, c.CampaignID, c.ProducerID, c.OfferID, now)
				return err
			})
			if err != nil {
				return out, err
			}
			if n == 1 {
				out = append(out, c)
				released++
			}
		}
		if len(candidates) < batch || released == 0 {
			break
		}
	}

	if len(out) > 0 {
		s.metrics.RecordSelectionsLapsed(ctx, len(out))
		obslogger.WithContext(ctx, s.log).Info("unconfirmed selections released", zap.Int("count", len(out)))
	}
	return out, nil
}
