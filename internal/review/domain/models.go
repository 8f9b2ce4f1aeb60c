package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/matchhub/pkg/db"
)

type Review struct {
	ID         int64     `json:"id"`
	CampaignID int64     `json:"campaign_id"`
	FromUserID int64     `json:"from_user_id"`
	ToUserID   int64     `json:"to_user_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateRequest struct {
	CampaignID int64
	FromUserID int64
	Rating     int
	Comment    string
}

// Target names the profile table a rating lands on.
type Target string

const (
	TargetProducer  Target = "producer"
	TargetRequester Target = "requester"
)

type Repository interface {
	Insert(ctx context.Context, tx db.Tx, review *Review) error
	ListByCampaign(ctx context.Context, tx db.Tx, campaignID int64) ([]Review, error)
	// ApplyRating folds one rating into the target profile's running average
	// in a single statement.
	ApplyRating(ctx context.Context, tx db.Tx, target Target, userID int64, rating int) (int64, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Review, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]Review, error)
}

const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 1000
)

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidRating       = errors.New("invalid_rating")
	ErrInvalidComment      = errors.New("invalid_comment")
	ErrCampaignNotComplete = errors.New("campaign_not_completed")
	ErrAlreadyReviewed     = errors.New("already_reviewed")
)
