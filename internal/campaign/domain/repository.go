package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/matchhub/pkg/db"
)

type Repository interface {
	InsertCampaign(ctx context.Context, tx db.Tx, campaign *Campaign) error
	FindCampaign(ctx context.Context, tx db.Tx, id int64) (*Campaign, error)
	ListByRequester(ctx context.Context, tx db.Tx, requesterID int64) ([]Campaign, error)
	FindParticipants(ctx context.Context, tx db.Tx, campaignID int64) (*Participants, error)
	// TouchIfOpen bumps updated_at only while the campaign is open. Postgres
	// keeps the row locked until commit, so a racing selection waits for us.
	TouchIfOpen(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error)

	InsertOffer(ctx context.Context, tx db.Tx, offer *Offer) error
	FindOffer(ctx context.Context, tx db.Tx, id int64) (*Offer, error)
	ListOffers(ctx context.Context, tx db.Tx, campaignID int64) ([]Offer, error)
	HasActiveOffer(ctx context.Context, tx db.Tx, campaignID, producerID int64) (bool, error)

	FindSelectionTarget(ctx context.Context, tx db.Tx, offerID int64) (*SelectionTarget, error)
	// MarkOfferSelected moves an active offer to selected.
	MarkOfferSelected(ctx context.Context, tx db.Tx, offerID int64) (int64, error)
	RejectSiblings(ctx context.Context, tx db.Tx, campaignID, winnerOfferID int64) (int64, error)
	// CompareAndSwapSelection sets producer_selected only while the campaign
	// is still in a selectable status.
	CompareAndSwapSelection(ctx context.Context, tx db.Tx, campaignID, producerID int64, now time.Time) (int64, error)

	ListExpirable(ctx context.Context, tx db.Tx, now time.Time, limit int) ([]int64, error)
	// Expire moves a campaign past its deadline to expired.
	Expire(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error)
	ActiveOfferProducerUserIDs(ctx context.Context, tx db.Tx, campaignID int64) ([]int64, error)
	RejectActiveOffers(ctx context.Context, tx db.Tx, campaignID int64) (int64, error)

	Cancel(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error)
	MarkSideComplete(ctx context.Context, tx db.Tx, campaignID int64, side Side, now time.Time) (int64, error)
	MarkDone(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error)
	MarkContactShared(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error)
	MarkInProgress(ctx context.Context, tx db.Tx, campaignID int64, now time.Time) (int64, error)
	// ReleaseSelection reopens a campaign whose selected producer went silent
	// and rejects that producer's offer.
	ReleaseSelection(ctx context.Context, tx db.Tx, campaignID, producerID, offerID int64, now time.Time) (int64, error)
}
