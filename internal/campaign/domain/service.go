package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type CreateCampaignRequest struct {
	RequesterUserID int64
	Title           string
	City            string
	Categories      []string
	Description     string
	BudgetType      BudgetType
	BudgetValue     *float64
	Deadline        *time.Time
}

type CreateOfferRequest struct {
	ProducerUserID int64
	CampaignID     int64
	ProposedPrice  float64
	Currency       string
	ReadyInDays    int
	Comment        string
}

type SelectOfferRequest struct {
	OfferID int64
	// RequesterUserID, when set, must own the offer's campaign.
	RequesterUserID int64
}

type Service interface {
	CreateCampaign(ctx context.Context, req CreateCampaignRequest) (Campaign, error)
	GetCampaign(ctx context.Context, id int64) (Campaign, error)
	ListByRequester(ctx context.Context, requesterUserID int64) ([]Campaign, error)
	CreateOffer(ctx context.Context, req CreateOfferRequest) (Offer, error)
	GetOffer(ctx context.Context, id int64) (Offer, error)
	ListOffers(ctx context.Context, campaignID int64) ([]Offer, error)

	// SelectOffer reports false, with a nil error, when the selection lost to
	// a concurrent selection, cancellation or expiry. A losing call leaves no
	// writes behind.
	SelectOffer(ctx context.Context, req SelectOfferRequest) (bool, error)
	Cancel(ctx context.Context, requesterUserID, campaignID int64) (Campaign, error)
	MarkComplete(ctx context.Context, userID, campaignID int64) (Campaign, error)
	StartWork(ctx context.Context, producerUserID, campaignID int64) (Campaign, error)
	SweepExpired(ctx context.Context) ([]ExpiredCampaign, error)
}

const (
	MaxTitleLength       = 120
	MaxCityLength        = 60
	MaxDescriptionLength = 2000
	MaxCategories        = 10
	MaxCategoryLength    = 60
	MaxCommentLength     = 1000
	MaxReadyInDays       = 365
)

var (
	ErrInvalidTitle       = errors.New("invalid_title")
	ErrInvalidCity        = errors.New("invalid_city")
	ErrInvalidCategories  = errors.New("invalid_categories")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidBudget      = errors.New("invalid_budget")
	ErrInvalidDeadline    = errors.New("invalid_deadline")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidReadyIn     = errors.New("invalid_ready_in_days")
	ErrInvalidComment     = errors.New("invalid_comment")
	ErrInvalidID          = errors.New("invalid_id")

	ErrCampaignNotFound       = errors.New("campaign_not_found")
	ErrOfferNotFound          = errors.New("offer_not_found")
	ErrRequesterProfileNeeded = errors.New("requester_profile_required")
	ErrProducerProfileNeeded  = errors.New("producer_profile_required")
	ErrForbidden              = errors.New("forbidden")
	ErrCampaignNotOpen        = errors.New("campaign_not_open")
	ErrDuplicateOffer         = errors.New("duplicate_offer")
	ErrSelfOffer              = errors.New("self_offer")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrRateLimited            = errors.New("rate_limited")
)

// RateLimitError is returned when the creation limiter denies a call.
// errors.Is(err, ErrRateLimited) holds for it.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s retry after %s", ErrRateLimited, e.Action, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
