package service

import (
	"context"
	"strings"
	"unicode/utf8"

	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	"github.com/smallbiznis/matchhub/internal/clock"
	obslogger "github.com/smallbiznis/matchhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchhub/internal/observability/metrics"
	"github.com/smallbiznis/matchhub/internal/review/domain"
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

	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	store     db.Store
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	campaigns campaigndomain.Repository
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		store:     p.Store,
		log:       p.Log.Named("review.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		campaigns: p.Campaigns,
		metrics:   p.ObsMetrics,
	}
}

// Create lets either party of a completed campaign review the other once.
// The review row, the target's rating and the campaign's done flag are
// written in one unit of work.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Review, error) {
	if req.CampaignID <= 0 || req.FromUserID <= 0 {
		return domain.Review{}, domain.ErrInvalidID
	}
	if req.Rating < domain.MinRating || req.Rating > domain.MaxRating {
		return domain.Review{}, domain.ErrInvalidRating
	}
	comment := strings.TrimSpace(req.Comment)
	if utf8.RuneCountInString(comment) > domain.MaxCommentLength {
		return domain.Review{}, domain.ErrInvalidComment
	}

	now := s.clock.Now()
	review := domain.Review{
		CampaignID: req.CampaignID,
		FromUserID: req.FromUserID,
		Rating:     req.Rating,
		Comment:    comment,
		CreatedAt:  now,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		participants, err := s.campaigns.FindParticipants(ctx, tx, req.CampaignID)
		if err != nil {
			return err
		}
		if participants == nil {
			return campaigndomain.ErrCampaignNotFound
		}
		side, ok := participants.SideOf(req.FromUserID)
		if !ok {
			return campaigndomain.ErrForbidden
		}
		if participants.Status != campaigndomain.StatusCompleted {
			return domain.ErrCampaignNotComplete
		}

		target := domain.TargetProducer
		review.ToUserID = participants.ProducerUserID
		if side == campaigndomain.SideProducer {
			target = domain.TargetRequester
			review.ToUserID = participants.RequesterUserID
		}

		if err := s.repo.Insert(ctx, tx, &review); err != nil {
			return err
		}
		if _, err := s.repo.ApplyRating(ctx, tx, target, review.ToUserID, review.Rating); err != nil {
			return err
		}
		_, err = s.campaigns.MarkDone(ctx, tx, req.CampaignID, now)
		return err
	})
	if db.IsDuplicateKeyErr(err) {
		return domain.Review{}, domain.ErrAlreadyReviewed
	}
	if err != nil {
		return domain.Review{}, err
	}

	s.metrics.RecordReviewCreated(ctx)
	obslogger.WithContext(ctx, s.log).Info("review created",
		zap.Int64("campaign_id", review.CampaignID),
		zap.Int64("review_id", review.ID),
	)
	return review, nil
}

func (s *Service) ListByCampaign(ctx context.Context, campaignID int64) ([]domain.Review, error) {
	if campaignID <= 0 {
		return nil, domain.ErrInvalidID
	}
	var out []domain.Review
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		out, err = s.repo.ListByCampaign(ctx, tx, campaignID)
		return err
	})
	return out, err
}
