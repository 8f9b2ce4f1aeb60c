package service

import (
	"context"

	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/notification/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store db.Store
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	store db.Store
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("notification.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Bump(ctx context.Context, userID int64, kind domain.Kind, delta int64) error {
	if err := validate(userID, kind); err != nil {
		return err
	}
	if delta <= 0 {
		return domain.ErrInvalidDelta
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return s.repo.Bump(ctx, tx, userID, kind, delta, s.clock.Now())
	})
}

func (s *Service) Reset(ctx context.Context, userID int64, kind domain.Kind) error {
	if err := validate(userID, kind); err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return s.repo.Reset(ctx, tx, userID, kind, s.clock.Now())
	})
}

func (s *Service) Peek(ctx context.Context, userID int64, kind domain.Kind) (int64, error) {
	counter, err := s.Get(ctx, userID, kind)
	if err != nil {
		return 0, err
	}
	return counter.UnseenCount, nil
}

// Get returns a zero counter when nothing was ever bumped.
func (s *Service) Get(ctx context.Context, userID int64, kind domain.Kind) (domain.Counter, error) {
	if err := validate(userID, kind); err != nil {
		return domain.Counter{}, err
	}
	var counter *domain.Counter
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		counter, err = s.repo.Get(ctx, tx, userID, kind)
		return err
	})
	if err != nil {
		return domain.Counter{}, err
	}
	if counter == nil {
		return domain.Counter{UserID: userID, Kind: kind}, nil
	}
	return *counter, nil
}

func (s *Service) RecordDelivered(ctx context.Context, userID int64, kind domain.Kind, ref string) error {
	if err := validate(userID, kind); err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return s.repo.SetLastRef(ctx, tx, userID, kind, ref, s.clock.Now())
	})
}

func validate(userID int64, kind domain.Kind) error {
	if userID <= 0 {
		return domain.ErrInvalidUser
	}
	if !kind.Valid() {
		return domain.ErrInvalidKind
	}
	return nil
}
