package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/matchhub/pkg/db"
)

type Kind string

const (
	// KindNewCampaigns counts open campaigns matching a producer.
	KindNewCampaigns Kind = "new_campaigns"
	// KindNewOffers counts offers received by a requester.
	KindNewOffers Kind = "new_offers"
)

func (k Kind) Valid() bool {
	return k == KindNewCampaigns || k == KindNewOffers
}

func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	if !k.Valid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

// Counter is one row per (user, kind), upserted in place.
type Counter struct {
	UserID      int64     `json:"user_id"`
	Kind        Kind      `json:"kind"`
	UnseenCount int64     `json:"unseen_count"`
	LastRef     string    `json:"last_ref,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Badge is what the outward delivery layer renders, e.g. a red dot with N.
type Badge struct {
	UserID int64
	Kind   Kind
	Count  int64
}

// Delivery hands a collapsed badge to the messaging layer and returns a
// reference to the delivered indicator so the next one can replace it.
type Delivery interface {
	Deliver(ctx context.Context, badge Badge, previousRef string) (string, error)
}

// Notifier is told that a counter changed. Implementations may collapse
// bursts before delivering.
type Notifier interface {
	Notify(userID int64, kind Kind)
}

type Repository interface {
	// Bump adds delta in a single statement; concurrent bumps never lose counts.
	Bump(ctx context.Context, tx db.Tx, userID int64, kind Kind, delta int64, now time.Time) error
	Reset(ctx context.Context, tx db.Tx, userID int64, kind Kind, now time.Time) error
	Get(ctx context.Context, tx db.Tx, userID int64, kind Kind) (*Counter, error)
	SetLastRef(ctx context.Context, tx db.Tx, userID int64, kind Kind, ref string, now time.Time) error
}

type Service interface {
	Bump(ctx context.Context, userID int64, kind Kind, delta int64) error
	Reset(ctx context.Context, userID int64, kind Kind) error
	Peek(ctx context.Context, userID int64, kind Kind) (int64, error)
	Get(ctx context.Context, userID int64, kind Kind) (Counter, error)
	RecordDelivered(ctx context.Context, userID int64, kind Kind, ref string) error
}

var (
	ErrInvalidKind  = errors.New("invalid_notification_kind")
	ErrInvalidDelta = errors.New("invalid_delta")
	ErrInvalidUser  = errors.New("invalid_user")
)
