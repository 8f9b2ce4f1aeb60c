package domain

import (
	"context"
	"errors"
)

type CreateProducerRequest struct {
	UserID      int64
	Name        string
	Locations   []string
	Categories  []string
	Description string
}

type CreateRequesterRequest struct {
	UserID      int64
	Name        string
	City        string
	Description string
}

type BanRequest struct {
	UserID  int64
	Reason  string
	ActorID int64
}

type Service interface {
	EnsureUser(ctx context.Context, externalID string) (User, error)
	GetUser(ctx context.Context, userID int64) (User, error)
	Ban(ctx context.Context, req BanRequest) (User, error)
	Unban(ctx context.Context, userID int64) (User, error)
	DeleteUser(ctx context.Context, userID int64) error

	CreateProducerProfile(ctx context.Context, req CreateProducerRequest) (ProducerProfile, error)
	CreateRequesterProfile(ctx context.Context, req CreateRequesterRequest) (RequesterProfile, error)
	GetProducerByUser(ctx context.Context, userID int64) (ProducerProfile, error)
	GetRequesterByUser(ctx context.Context, userID int64) (RequesterProfile, error)

	FindProducers(ctx context.Context, city string, categories []string) ([]ProducerProfile, error)
	FindCampaignsForProducer(ctx context.Context, producerID int64) ([]CampaignMatch, error)
}

const (
	MaxNameLength        = 120
	MaxDescriptionLength = 2000
	MaxTerms             = 20
	MaxTermLength        = 60
	MaxExternalIDLength  = 128
	MaxBanReasonLength   = 500
)

var (
	ErrInvalidExternalID  = errors.New("invalid_external_id")
	ErrInvalidUserID      = errors.New("invalid_user_id")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidCity        = errors.New("invalid_city")
	ErrInvalidTerms       = errors.New("invalid_terms")
	ErrInvalidBanReason   = errors.New("invalid_ban_reason")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrProfileNotFound    = errors.New("profile_not_found")
	ErrDuplicateProfile   = errors.New("duplicate_profile")
	ErrUserBanned         = errors.New("user_banned")
)
