package domain

import "time"

type Status string

const (
	StatusOpen                        Status = "open"
	StatusWaitingProducerConfirmation Status = "waiting_producer_confirmation"
	StatusProducerSelected            Status = "producer_selected"
	StatusContactShared               Status = "contact_shared"
	StatusInProgress                  Status = "in_progress"
	StatusCompleted                   Status = "completed"
	StatusCancelled                   Status = "cancelled"
	StatusExpired                     Status = "expired"
)

type OfferStatus string

const (
	OfferStatusActive   OfferStatus = "active"
	OfferStatusSelected OfferStatus = "selected"
	OfferStatusRejected OfferStatus = "rejected"
)

type BudgetType string

const (
	BudgetFixed      BudgetType = "fixed"
	BudgetRange      BudgetType = "up_to"
	BudgetNegotiable BudgetType = "negotiable"
	BudgetBarter     BudgetType = "barter"
)

func (b BudgetType) Valid() bool {
	switch b {
	case BudgetFixed, BudgetRange, BudgetNegotiable, BudgetBarter:
		return true
	}
	return false
}

// NeedsValue reports whether the budget descriptor carries an amount.
func (b BudgetType) NeedsValue() bool {
	return b == BudgetFixed || b == BudgetRange
}

// Side identifies which party of a campaign is acting.
type Side string

const (
	SideRequester Side = "requester"
	SideProducer  Side = "producer"
)

type Campaign struct {
	ID                 int64      `json:"id"`
	RequesterID        int64      `json:"requester_id"`
	RequesterUserID    int64      `json:"requester_user_id"`
	Title              string     `json:"title"`
	City               string     `json:"city"`
	Categories         []string   `json:"categories"`
	Description        string     `json:"description"`
	BudgetType         BudgetType `json:"budget_type"`
	BudgetValue        *float64   `json:"budget_value,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	Status             Status     `json:"status"`
	SelectedProducerID *int64     `json:"selected_producer_id,omitempty"`
	RequesterCompleted bool       `json:"requester_completed"`
	ProducerCompleted  bool       `json:"producer_completed"`
	Done               bool       `json:"done"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type Offer struct {
	ID             int64       `json:"id"`
	CampaignID     int64       `json:"campaign_id"`
	ProducerID     int64       `json:"producer_id"`
	ProducerUserID int64       `json:"producer_user_id"`
	ProposedPrice  float64     `json:"proposed_price"`
	Currency       string      `json:"currency"`
	ReadyInDays    int         `json:"ready_in_days"`
	Comment        string      `json:"comment"`
	Status         OfferStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SelectionTarget is the single read that opens a selection: the offer, its
// campaign and the campaign's status at that moment.
type SelectionTarget struct {
	OfferID         int64
	OfferStatus     OfferStatus
	CampaignID      int64
	CampaignStatus  Status
	ProducerID      int64
	ProducerUserID  int64
	RequesterUserID int64
}

// ExpiredCampaign is what the sweep hands to the notifier for each campaign
// it moved to expired.
type ExpiredCampaign struct {
	CampaignID      int64   `json:"campaign_id"`
	RequesterUserID int64   `json:"requester_user_id"`
	ProducerUserIDs []int64 `json:"producer_user_ids"`
	Title           string  `json:"title"`
}

// Participants resolves who may act on a campaign after selection.
// ProducerUserID is zero until a producer is selected.
type Participants struct {
	CampaignID         int64
	Title              string
	Status             Status
	RequesterUserID    int64
	SelectedProducerID int64
	ProducerUserID     int64
	RequesterCompleted bool
	ProducerCompleted  bool
}

// SideOf reports which side userID plays, if any.
func (p Participants) SideOf(userID int64) (Side, bool) {
	switch {
	case userID == 0:
		return "", false
	case userID == p.RequesterUserID:
		return SideRequester, true
	case userID == p.ProducerUserID:
		return SideProducer, true
	}
	return "", false
}
