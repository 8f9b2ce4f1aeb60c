package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/profile/domain"
	"github.com/smallbiznis/matchhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Status of campaigns the directory offers to producers.
const openCampaignStatus = "open"

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
		log:   p.Log.Named("profile.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) EnsureUser(ctx context.Context, externalID string) (domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" || len(externalID) > domain.MaxExternalIDLength {
		return domain.User{}, domain.ErrInvalidExternalID
	}

	var user domain.User
	create := func(ctx context.Context, tx db.Tx) error {
		existing, err := s.repo.FindUserByExternalID(ctx, tx, externalID)
		if err != nil {
			return err
		}
		if existing != nil {
			user = *existing
			return nil
		}
		user = domain.User{
			ExternalID: externalID,
			Role:       domain.RoleUser,
			CreatedAt:  s.clock.Now(),
		}
		return s.repo.InsertUser(ctx, tx, &user)
	}

	err := s.store.WithinTx(ctx, create)
	if db.IsDuplicateKeyErr(err) {
		// lost the first-interaction race; the winner's row is now visible
		err = s.store.WithinTx(ctx, create)
	}
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	if userID <= 0 {
		return domain.User{}, domain.ErrInvalidUserID
	}
	var user *domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		user, err = s.repo.FindUser(ctx, tx, userID)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *user, nil
}

func (s *Service) Ban(ctx context.Context, req domain.BanRequest) (domain.User, error) {
	if req.UserID <= 0 {
		return domain.User{}, domain.ErrInvalidUserID
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" || utf8.RuneCountInString(reason) > domain.MaxBanReasonLength {
		return domain.User{}, domain.ErrInvalidBanReason
	}
	now := s.clock.Now()
	var by *int64
	if req.ActorID > 0 {
		by = &req.ActorID
	}
	if err := s.setBan(ctx, req.UserID, true, reason, &now, by); err != nil {
		return domain.User{}, err
	}
	s.log.Info("user banned",
		zap.Int64("user_id", req.UserID),
		zap.Int64("actor_id", req.ActorID),
	)
	return s.GetUser(ctx, req.UserID)
}

func (s *Service) Unban(ctx context.Context, userID int64) (domain.User, error) {
	if userID <= 0 {
		return domain.User{}, domain.ErrInvalidUserID
	}
	if err := s.setBan(ctx, userID, false, "", nil, nil); err != nil {
		return domain.User{}, err
	}
	s.log.Info("user unbanned", zap.Int64("user_id", userID))
	return s.GetUser(ctx, userID)
}

func (s *Service) setBan(ctx context.Context, userID int64, banned bool, reason string, at *time.Time, by *int64) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		n, err := s.repo.SetBan(ctx, tx, userID, banned, reason, at, by)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

// DeleteUser removes the user; profiles, campaigns, offers, channels and
// counters go with it through the schema's cascades.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return domain.ErrInvalidUserID
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		n, err := s.repo.DeleteUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("user deleted", zap.Int64("user_id", userID))
	return nil
}

func (s *Service) CreateProducerProfile(ctx context.Context, req domain.CreateProducerRequest) (domain.ProducerProfile, error) {
	if req.UserID <= 0 {
		return domain.ProducerProfile{}, domain.ErrInvalidUserID
	}
	name, err := validateName(req.Name)
	if err != nil {
		return domain.ProducerProfile{}, err
	}
	description, err := validateDescription(req.Description)
	if err != nil {
		return domain.ProducerProfile{}, err
	}
	locations, err := validateTerms(req.Locations)
	if err != nil {
		return domain.ProducerProfile{}, err
	}
	categories, err := validateTerms(req.Categories)
	if err != nil {
		return domain.ProducerProfile{}, err
	}

	profile := domain.ProducerProfile{
		UserID:      req.UserID,
		Name:        name,
		Locations:   locations,
		Categories:  categories,
		Description: description,
		CreatedAt:   s.clock.Now(),
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if err := s.ensureActiveUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		existing, err := s.repo.FindProducerByUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateProfile
		}
		return s.repo.InsertProducer(ctx, tx, &profile)
	})
	if db.IsDuplicateKeyErr(err) {
		return domain.ProducerProfile{}, domain.ErrDuplicateProfile
	}
	if err != nil {
		return domain.ProducerProfile{}, err
	}
	return profile, nil
}

func (s *Service) CreateRequesterProfile(ctx context.Context, req domain.CreateRequesterRequest) (domain.RequesterProfile, error) {
	if req.UserID <= 0 {
		return domain.RequesterProfile{}, domain.ErrInvalidUserID
	}
	name, err := validateName(req.Name)
	if err != nil {
		return domain.RequesterProfile{}, err
	}
	description, err := validateDescription(req.Description)
	if err != nil {
		return domain.RequesterProfile{}, err
	}
	city := strings.TrimSpace(req.City)
	if utf8.RuneCountInString(city) > domain.MaxTermLength {
		return domain.RequesterProfile{}, domain.ErrInvalidCity
	}

	profile := domain.RequesterProfile{
		UserID:      req.UserID,
		Name:        name,
		City:        city,
		Description: description,
		CreatedAt:   s.clock.Now(),
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if err := s.ensureActiveUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		existing, err := s.repo.FindRequesterByUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateProfile
		}
		return s.repo.InsertRequester(ctx, tx, &profile)
	})
	if db.IsDuplicateKeyErr(err) {
		return domain.RequesterProfile{}, domain.ErrDuplicateProfile
	}
	if err != nil {
		return domain.RequesterProfile{}, err
	}
	return profile, nil
}

func (s *Service) ensureActiveUser(ctx context.Context, tx db.Tx, userID int64) error {
	user, err := s.repo.FindUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrUserNotFound
	}
	if user.IsBanned {
		return domain.ErrUserBanned
	}
	return nil
}

func (s *Service) GetProducerByUser(ctx context.Context, userID int64) (domain.ProducerProfile, error) {
	var profile *domain.ProducerProfile
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		profile, err = s.repo.FindProducerByUser(ctx, tx, userID)
		return err
	})
	if err != nil {
		return domain.ProducerProfile{}, err
	}
	if profile == nil {
		return domain.ProducerProfile{}, domain.ErrProfileNotFound
	}
	return *profile, nil
}

func (s *Service) GetRequesterByUser(ctx context.Context, userID int64) (domain.RequesterProfile, error) {
	var profile *domain.RequesterProfile
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		profile, err = s.repo.FindRequesterByUser(ctx, tx, userID)
		return err
	})
	if err != nil {
		return domain.RequesterProfile{}, err
	}
	if profile == nil {
		return domain.RequesterProfile{}, domain.ErrProfileNotFound
	}
	return *profile, nil
}

func (s *Service) FindProducers(ctx context.Context, city string, categories []string) ([]domain.ProducerProfile, error) {
	city = strings.ToLower(strings.TrimSpace(city))
	terms := domain.NormalizeTerms(categories)
	var out []domain.ProducerProfile
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		out, err = s.repo.FindProducers(ctx, tx, city, terms)
		return err
	})
	return out, err
}

func (s *Service) FindCampaignsForProducer(ctx context.Context, producerID int64) ([]domain.CampaignMatch, error) {
	if producerID <= 0 {
		return nil, domain.ErrProfileNotFound
	}
	var out []domain.CampaignMatch
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		out, err = s.repo.FindCampaignsForProducer(ctx, tx, producerID, openCampaignStatus)
		return err
	})
	return out, err
}

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > domain.MaxNameLength {
		return "", domain.ErrInvalidName
	}
	return name, nil
}

func validateDescription(raw string) (string, error) {
	description := strings.TrimSpace(raw)
	if utf8.RuneCountInString(description) > domain.MaxDescriptionLength {
		return "", domain.ErrInvalidDescription
	}
	return description, nil
}

func validateTerms(raw []string) ([]string, error) {
	terms := domain.NormalizeTerms(raw)
	if len(terms) == 0 || len(terms) > domain.MaxTerms {
		return nil, domain.ErrInvalidTerms
	}
	for _, term := range terms {
		if utf8.RuneCountInString(term) > domain.MaxTermLength {
			return nil, domain.ErrInvalidTerms
		}
	}
	return terms, nil
}
