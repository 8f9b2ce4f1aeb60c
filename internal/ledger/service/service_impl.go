package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/matchhub/internal/clock"
	ledgerdomain "github.com/smallbiznis/matchhub/internal/ledger/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store db.Store
	Log   *zap.Logger
	Clock clock.Clock
	Repo  ledgerdomain.Repository
}

type Service struct {
	store db.Store
	log   *zap.Logger
	clock clock.Clock
	repo  ledgerdomain.Repository
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("ledger.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, req ledgerdomain.RecordRequest) (ledgerdomain.Transaction, error) {
	txn, err := Build(req, s.clock)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	if err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return s.repo.Insert(ctx, tx, &txn)
	}); err != nil {
		return ledgerdomain.Transaction{}, err
	}

	s.log.Info("transaction recorded",
		zap.Int64("transaction_id", txn.ID),
		zap.Int64("user_id", txn.UserID),
		zap.String("type", string(txn.Type)),
	)
	return txn, nil
}

// Build validates req and stamps it, for callers that insert the row inside
// their own unit of work.
func Build(req ledgerdomain.RecordRequest, clk clock.Clock) (ledgerdomain.Transaction, error) {
	if req.UserID <= 0 {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidUser
	}
	if !req.Type.Valid() {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidType
	}
	status := req.Status
	if status == "" {
		status = ledgerdomain.StatusRecorded
	}
	if !status.Valid() {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidStatus
	}
	if req.Amount < 0 {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency != "" && len(currency) != 3 {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidCurrency
	}
	return ledgerdomain.Transaction{
		UserID:     req.UserID,
		CampaignID: req.CampaignID,
		OfferID:    req.OfferID,
		Type:       req.Type,
		Amount:     req.Amount,
		Currency:   currency,
		Status:     status,
		CreatedAt:  clk.Now(),
	}, nil
}

func (s *Service) ListByCampaign(ctx context.Context, campaignID int64) ([]ledgerdomain.Transaction, error) {
	var out []ledgerdomain.Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		out, err = s.repo.ListByCampaign(ctx, tx, campaignID)
		return err
	})
	return out, err
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]ledgerdomain.Transaction, error) {
	var out []ledgerdomain.Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		out, err = s.repo.ListByUser(ctx, tx, userID)
		return err
	})
	return out, err
}
