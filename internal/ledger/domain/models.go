package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/matchhub/pkg/db"
)

// TransactionType names the symbolic payment or access event being recorded.
type TransactionType string

const (
	// ======================
	// Access
	// ======================
	TypeAccess        TransactionType = "access"         // requester unlocked a producer by selecting their offer
	TypeContactUnlock TransactionType = "contact_unlock" // contacts shared once the chat opened

	// ======================
	// Payments
	// ======================
	TypePayment TransactionType = "payment"
	TypeRefund  TransactionType = "refund"
)

type TransactionStatus string

const (
	StatusRecorded  TransactionStatus = "recorded"
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeAccess, TypeContactUnlock, TypePayment, TypeRefund:
		return true
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusRecorded, StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Transaction rows are append-only: nothing updates or deletes them.
type Transaction struct {
	ID         int64             `json:"id"`
	UserID     int64             `json:"user_id"`
	CampaignID *int64            `json:"campaign_id,omitempty"`
	OfferID    *int64            `json:"offer_id,omitempty"`
	Type       TransactionType   `json:"type"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	Status     TransactionStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

type Repository interface {
	Insert(ctx context.Context, tx db.Tx, txn *Transaction) error
	ListByCampaign(ctx context.Context, tx db.Tx, campaignID int64) ([]Transaction, error)
	ListByUser(ctx context.Context, tx db.Tx, userID int64) ([]Transaction, error)
}

type RecordRequest struct {
	UserID     int64
	CampaignID *int64
	OfferID    *int64
	Type       TransactionType
	Amount     float64
	Currency   string
	Status     TransactionStatus
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (Transaction, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]Transaction, error)
	ListByUser(ctx context.Context, userID int64) ([]Transaction, error)
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidType     = errors.New("invalid_transaction_type")
	ErrInvalidStatus   = errors.New("invalid_transaction_status")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
)
