package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/matchhub/pkg/db"
)

// Channel is the conversation opened between a requester and the producer
// they selected. There is at most one channel per (campaign, offer).
type Channel struct {
	ID                  int64      `json:"id"`
	CampaignID          int64      `json:"campaign_id"`
	OfferID             int64      `json:"offer_id"`
	RequesterUserID     int64      `json:"requester_user_id"`
	ProducerUserID      int64      `json:"producer_user_id"`
	ProducerConfirmed   bool       `json:"producer_confirmed"`
	ProducerConfirmedAt *time.Time `json:"producer_confirmed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`
}

// Deadline is the last instant the producer may confirm. It is derived on
// read from created_at, so no timer has to survive a restart.
func (c Channel) Deadline(window time.Duration) time.Time {
	return c.CreatedAt.Add(window)
}

// Lapsed reports whether the producer let the confirmation window pass.
func (c Channel) Lapsed(now time.Time, window time.Duration) bool {
	return !c.ProducerConfirmed && now.After(c.Deadline(window))
}

// LapsedSelection is a channel whose silent producer lost the selection.
type LapsedSelection struct {
	ChannelID       int64 `json:"channel_id"`
	CampaignID      int64 `json:"campaign_id"`
	OfferID         int64 `json:"offer_id"`
	ProducerID      int64 `json:"producer_id"`
	RequesterUserID int64 `json:"requester_user_id"`
	ProducerUserID  int64 `json:"producer_user_id"`
}

type Repository interface {
	Insert(ctx context.Context, tx db.Tx, channel *Channel) error
	Find(ctx context.Context, tx db.Tx, id int64) (*Channel, error)
	FindByPair(ctx context.Context, tx db.Tx, campaignID, offerID int64) (*Channel, error)
	// Confirm sets producer_confirmed only while it is unset and the channel
	// was created at or after notBefore.
	Confirm(ctx context.Context, tx db.Tx, id int64, now, notBefore time.Time) (int64, error)
	Touch(ctx context.Context, tx db.Tx, id int64, now time.Time) (int64, error)
	// ListLapsed returns unconfirmed channels created before cutoff whose
	// offer still holds the selection.
	ListLapsed(ctx context.Context, tx db.Tx, cutoff time.Time, limit int) ([]LapsedSelection, error)
	// ListUnopened returns selected offers whose campaign is still
	// producer_selected but has no channel yet.
	ListUnopened(ctx context.Context, tx db.Tx, limit int) ([]int64, error)
}

type Service interface {
	// OpenForSelection opens (or returns) the channel for a selected offer
	// and moves the campaign to contact_shared.
	OpenForSelection(ctx context.Context, offerID int64) (Channel, error)
	// OpenPending opens the channel of a selection the requester already won
	// but whose channel was never created. It reports false when the offer
	// has no such pending selection.
	OpenPending(ctx context.Context, offerID, requesterUserID int64) (Channel, bool, error)
	// OpenMissing opens a channel for every selection left without one.
	OpenMissing(ctx context.Context) ([]Channel, error)
	Get(ctx context.Context, id int64) (Channel, error)
	Confirm(ctx context.Context, channelID, producerUserID int64) (Channel, error)
	Touch(ctx context.Context, channelID, userID int64) (Channel, error)
	Deadline(channel Channel) time.Time
	IsLapsed(channel Channel) bool
	// LapseExpired releases every selection whose producer stayed silent past
	// the confirmation window.
	LapseExpired(ctx context.Context) ([]LapsedSelection, error)
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrChannelNotFound    = errors.New("channel_not_found")
	ErrNotSelected        = errors.New("offer_not_selected")
	ErrForbidden          = errors.New("forbidden")
	ErrConfirmationLapsed = errors.New("confirmation_lapsed")
)
