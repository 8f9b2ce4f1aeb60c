package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/matchhub/pkg/db"
)

type Repository interface {
	InsertUser(ctx context.Context, tx db.Tx, user *User) error
	FindUserByExternalID(ctx context.Context, tx db.Tx, externalID string) (*User, error)
	FindUser(ctx context.Context, tx db.Tx, id int64) (*User, error)
	SetBan(ctx context.Context, tx db.Tx, userID int64, banned bool, reason string, at *time.Time, by *int64) (int64, error)
	DeleteUser(ctx context.Context, tx db.Tx, userID int64) (int64, error)

	InsertProducer(ctx context.Context, tx db.Tx, profile *ProducerProfile) error
	FindProducerByUser(ctx context.Context, tx db.Tx, userID int64) (*ProducerProfile, error)
	FindProducer(ctx context.Context, tx db.Tx, id int64) (*ProducerProfile, error)
	InsertRequester(ctx context.Context, tx db.Tx, profile *RequesterProfile) error
	FindRequesterByUser(ctx context.Context, tx db.Tx, userID int64) (*RequesterProfile, error)
	FindRequester(ctx context.Context, tx db.Tx, id int64) (*RequesterProfile, error)

	FindProducers(ctx context.Context, tx db.Tx, city string, categories []string) ([]ProducerProfile, error)
	FindCampaignsForProducer(ctx context.Context, tx db.Tx, producerID int64, status string) ([]CampaignMatch, error)
}
