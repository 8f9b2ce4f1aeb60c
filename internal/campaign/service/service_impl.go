package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smallbiznis/matchhub/internal/campaign/domain"
	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/config"
	ledgerdomain "github.com/smallbiznis/matchhub/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/matchhub/internal/notification/domain"
	obslogger "github.com/smallbiznis/matchhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchhub/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
	"github.com/smallbiznis/matchhub/internal/ratelimit"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store    db.Store
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Profiles profiledomain.Repository
	Counters notificationdomain.Repository
	Ledger   ledgerdomain.Repository
	Limiter  ratelimit.Limiter
	Policy   *config.PolicyHolder

	Notifier   notificationdomain.Notifier `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	store    db.Store
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	profiles profiledomain.Repository
	counters notificationdomain.Repository
	ledger   ledgerdomain.Repository
	limiter  ratelimit.Limiter
	policy   *config.PolicyHolder
	notifier notificationdomain.Notifier
	metrics  *obsmetrics.Metrics
	tracer   trace.Tracer
}

func New(p Params) domain.Service {
	return &Service{
		store:    p.Store,
		log:      p.Log.Named("campaign.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		profiles: p.Profiles,
		counters: p.Counters,
		ledger:   p.Ledger,
		limiter:  p.Limiter,
		policy:   p.Policy,
		notifier: p.Notifier,
		metrics:  p.ObsMetrics,
		tracer:   otel.Tracer("matchhub/campaign"),
	}
}

func (s *Service) CreateCampaign(ctx context.Context, req domain.CreateCampaignRequest) (domain.Campaign, error) {
	now := s.clock.Now()
	campaign, err := s.validateCampaign(req, now)
	if err != nil {
		return domain.Campaign{}, err
	}
	// Refused callers are turned away before admit, so they spend no quota.
	if err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		_, err := s.requesterOf(ctx, tx, req.RequesterUserID)
		return err
	}); err != nil {
		return domain.Campaign{}, err
	}
	if err := s.admit(ctx, req.RequesterUserID, ratelimit.ActionCampaignCreate, s.policy.Get().RateLimit.CampaignCreate); err != nil {
		return domain.Campaign{}, err
	}

	var notify []int64
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		requester, err := s.requesterOf(ctx, tx, req.RequesterUserID)
		if err != nil {
			return err
		}
		campaign.RequesterID = requester.ID
		campaign.RequesterUserID = requester.UserID

		if err := s.repo.InsertCampaign(ctx, tx, &campaign); err != nil {
			return err
		}

		producers, err := s.profiles.FindProducers(ctx, tx, strings.ToLower(campaign.City), campaign.Categories)
		if err != nil {
			return err
		}
		notify = notify[:0]
		for _, producer := range producers {
			if producer.UserID == req.RequesterUserID {
				continue
			}
			if err := s.counters.Bump(ctx, tx, producer.UserID, notificationdomain.KindNewCampaigns, 1, now); err != nil {
				return err
			}
			notify = append(notify, producer.UserID)
		}
		return nil
	})
	if err != nil {
		return domain.Campaign{}, err
	}

	s.metrics.RecordCampaignCreated(ctx)
	s.notifyAll(notify, notificationdomain.KindNewCampaigns)
	obslogger.WithContext(ctx, s.log).Info("campaign created",
		zap.Int64("campaign_id", campaign.ID),
		zap.Int64("requester_user_id", campaign.RequesterUserID),
		zap.Int("matched_producers", len(notify)),
	)
	return campaign, nil
}

func (s *Service) validateCampaign(req domain.CreateCampaignRequest, now time.Time) (domain.Campaign, error) {
	if req.RequesterUserID <= 0 {
		return domain.Campaign{}, domain.ErrInvalidID
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || utf8.RuneCountInString(title) > domain.MaxTitleLength {
		return domain.Campaign{}, domain.ErrInvalidTitle
	}
	city := strings.TrimSpace(req.City)
	if city == "" || utf8.RuneCountInString(city) > domain.MaxCityLength {
		return domain.Campaign{}, domain.ErrInvalidCity
	}
	categories := profiledomain.NormalizeTerms(req.Categories)
	if len(categories) == 0 || len(categories) > domain.MaxCategories {
		return domain.Campaign{}, domain.ErrInvalidCategories
	}
	for _, category := range categories {
		if utf8.RuneCountInString(category) > domain.MaxCategoryLength {
			return domain.Campaign{}, domain.ErrInvalidCategories
		}
	}
	description := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(description) > domain.MaxDescriptionLength {
		return domain.Campaign{}, domain.ErrInvalidDescription
	}

	budgetType := req.BudgetType
	if budgetType == "" {
		budgetType = domain.BudgetNegotiable
	}
	if !budgetType.Valid() {
		return domain.Campaign{}, domain.ErrInvalidBudget
	}
	var budgetValue *float64
	if budgetType.NeedsValue() {
		if req.BudgetValue == nil || *req.BudgetValue <= 0 {
			return domain.Campaign{}, domain.ErrInvalidBudget
		}
		v := *req.BudgetValue
		budgetValue = &v
	}

	var deadline *time.Time
	if req.Deadline != nil {
		d := req.Deadline.UTC()
		if !d.After(now) {
			return domain.Campaign{}, domain.ErrInvalidDeadline
		}
		deadline = &d
	}

	return domain.Campaign{
		Title:       title,
		City:        city,
		Categories:  categories,
		Description: description,
		BudgetType:  budgetType,
		BudgetValue: budgetValue,
		Deadline:    deadline,
		Status:      domain.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *Service) CreateOffer(ctx context.Context, req domain.CreateOfferRequest) (domain.Offer, error) {
	now := s.clock.Now()
	offer, err := validateOffer(req, now)
	if err != nil {
		return domain.Offer{}, err
	}
	if err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		_, err := s.producerOf(ctx, tx, req.ProducerUserID)
		return err
	}); err != nil {
		return domain.Offer{}, err
	}
	if err := s.admit(ctx, req.ProducerUserID, ratelimit.ActionOfferCreate, s.policy.Get().RateLimit.OfferCreate); err != nil {
		return domain.Offer{}, err
	}

	var requesterUserID int64
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		producer, err := s.producerOf(ctx, tx, req.ProducerUserID)
		if err != nil {
			return err
		}

		participants, err := s.repo.FindParticipants(ctx, tx, req.CampaignID)
		if err != nil {
			return err
		}
		if participants == nil {
			return domain.ErrCampaignNotFound
		}
		if participants.RequesterUserID == req.ProducerUserID {
			return domain.ErrSelfOffer
		}

		open, err := s.repo.TouchIfOpen(ctx, tx, req.CampaignID, now)
		if err != nil {
			return err
		}
		if open == 0 {
			return domain.ErrCampaignNotOpen
		}

		exists, err := s.repo.HasActiveOffer(ctx, tx, req.CampaignID, producer.ID)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateOffer
		}

		offer.ProducerID = producer.ID
		offer.ProducerUserID = producer.UserID
		if err := s.repo.InsertOffer(ctx, tx, &offer); err != nil {
			return err
		}

		requesterUserID = participants.RequesterUserID
		return s.counters.Bump(ctx, tx, requesterUserID, notificationdomain.KindNewOffers, 1, now)
	})
	if err != nil {
		return domain.Offer{}, err
	}

	s.metrics.RecordOfferCreated(ctx)
	s.notifyAll([]int64{requesterUserID}, notificationdomain.KindNewOffers)
	obslogger.WithContext(ctx, s.log).Info("offer created",
		zap.Int64("offer_id", offer.ID),
		zap.Int64("campaign_id", offer.CampaignID),
		zap.Int64("producer_id", offer.ProducerID),
	)
	return offer, nil
}

func validateOffer(req domain.CreateOfferRequest, now time.Time) (domain.Offer, error) {
	if req.ProducerUserID <= 0 || req.CampaignID <= 0 {
		return domain.Offer{}, domain.ErrInvalidID
	}
	if req.ProposedPrice <= 0 {
		return domain.Offer{}, domain.ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.Offer{}, domain.ErrInvalidCurrency
	}
	if req.ReadyInDays < 0 || req.ReadyInDays > domain.MaxReadyInDays {
		return domain.Offer{}, domain.ErrInvalidReadyIn
	}
	comment := strings.TrimSpace(req.Comment)
	if utf8.RuneCountInString(comment) > domain.MaxCommentLength {
		return domain.Offer{}, domain.ErrInvalidComment
	}
	return domain.Offer{
		CampaignID:    req.CampaignID,
		ProposedPrice: req.ProposedPrice,
		Currency:      currency,
		ReadyInDays:   req.ReadyInDays,
		Comment:       comment,
		Status:        domain.OfferStatusActive,
		CreatedAt:     now,
	}, nil
}

// requesterOf and producerOf run again inside the write transaction; a
// user banned between the two reads is still refused.
func (s *Service) requesterOf(ctx context.Context, tx db.Tx, userID int64) (*profiledomain.RequesterProfile, error) {
	if err := s.ensureActiveUser(ctx, tx, userID); err != nil {
		return nil, err
	}
	requester, err := s.profiles.FindRequesterByUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if requester == nil {
		return nil, domain.ErrRequesterProfileNeeded
	}
	return requester, nil
}

func (s *Service) producerOf(ctx context.Context, tx db.Tx, userID int64) (*profiledomain.ProducerProfile, error) {
	if err := s.ensureActiveUser(ctx, tx, userID); err != nil {
		return nil, err
	}
	producer, err := s.profiles.FindProducerByUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if producer == nil {
		return nil, domain.ErrProducerProfileNeeded
	}
	return producer, nil
}

// admit consults the process-local limiter. It throttles abuse only; the
// status guards in the database remain the correctness boundary.
func (s *Service) admit(ctx context.Context, userID int64, action string, limit int) error {
	ok, retryAfter := s.limiter.Allow(strconv.FormatInt(userID, 10), action, limit)
	if ok {
		s.metrics.RecordRateLimitAllowed(ctx, action)
		return nil
	}
	s.metrics.RecordRateLimitDenied(ctx, action)
	obslogger.WithContext(ctx, s.log).Info("creation rate limited",
		zap.Int64("user_id", userID),
		zap.String("action", action),
		zap.Duration("retry_after", retryAfter),
	)
	return &domain.RateLimitError{Action: action, RetryAfter: retryAfter}
}

func (s *Service) ensureActiveUser(ctx context.Context, tx db.Tx, userID int64) error {
	user, err := s.profiles.FindUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return profiledomain.ErrUserNotFound
	}
	if user.IsBanned {
		return profiledomain.ErrUserBanned
	}
	return nil
}

func (s *Service) notifyAll(userIDs []int64, kind notificationdomain.Kind) {
	if s.notifier == nil {
		return
	}
	for _, userID := range userIDs {
		s.notifier.Notify(userID, kind)
	}
}

func (s *Service) GetCampaign(ctx context.Context, id int64) (domain.Campaign, error) {
	if id <= 0 {
		return domain.Campaign{}, domain.ErrInvalidID
	}
	var campaign *domain.Campaign
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		campaign, err = s.repo.FindCampaign(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Campaign{}, err
	}
	if campaign == nil {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	return *campaign, nil
}

func (s *Service) ListByRequester(ctx context.Context, requesterUserID int64) ([]domain.Campaign, error) {
	var out []domain.Campaign
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		requester, err := s.profiles.FindRequesterByUser(ctx, tx, requesterUserID)
		if err != nil {
			return err
		}
		if requester == nil {
			return domain.ErrRequesterProfileNeeded
		}
		out, err = s.repo.ListByRequester(ctx, tx, requester.ID)
		return err
	})
	return out, err
}

func (s *Service) GetOffer(ctx context.Context, id int64) (domain.Offer, error) {
	if id <= 0 {
		return domain.Offer{}, domain.ErrInvalidID
	}
	var offer *domain.Offer
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		offer, err = s.repo.FindOffer(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Offer{}, err
	}
	if offer == nil {
		return domain.Offer{}, domain.ErrOfferNotFound
	}
	return *offer, nil
}

func (s *Service) ListOffers(ctx context.Context, campaignID int64) ([]domain.Offer, error) {
	if campaignID <= 0 {
		return nil, domain.ErrInvalidID
	}
	var out []domain.Offer
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		campaign, err := s.repo.FindCampaign(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if campaign == nil {
			return domain.ErrCampaignNotFound
		}
		out, err = s.repo.ListOffers(ctx, tx, campaignID)
		return err
	})
	return out, err
}

var errSelectionLost = errors.New("selection lost")
