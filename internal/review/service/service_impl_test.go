package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	campaignrepo "github.com/smallbiznis/matchhub/internal/campaign/repository"
	campaignservice "github.com/smallbiznis/matchhub/internal/campaign/service"
	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/config"
	ledgerrepo "github.com/smallbiznis/matchhub/internal/ledger/repository"
	"github.com/smallbiznis/matchhub/internal/migration/migrationtest"
	notificationrepo "github.com/smallbiznis/matchhub/internal/notification/repository"
	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
	profilerepo "github.com/smallbiznis/matchhub/internal/profile/repository"
	profileservice "github.com/smallbiznis/matchhub/internal/profile/service"
	"github.com/smallbiznis/matchhub/internal/ratelimit"
	"github.com/smallbiznis/matchhub/internal/review/domain"
	"github.com/smallbiznis/matchhub/internal/review/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	reviews   domain.Service
	campaigns campaigndomain.Service
	profiles  profiledomain.Service
	requester int64
	producer  int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := migrationtest.OpenSQLite(t)
	clk := clock.NewFakeClock(epoch)
	profileRepo := profilerepo.Provide()
	campaignRepo := campaignrepo.Provide()

	f := &fixture{
		profiles: profileservice.New(profileservice.Params{Store: store, Log: zap.NewNop(), Clock: clk, Repo: profileRepo}),
		campaigns: campaignservice.New(campaignservice.Params{
			Store:    store,
			Log:      zap.NewNop(),
			Clock:    clk,
			Repo:     campaignRepo,
			Profiles: profileRepo,
			Counters: notificationrepo.Provide(),
			Ledger:   ledgerrepo.Provide(),
			Limiter:  ratelimit.NewSlidingWindow(clk, time.Hour, 100),
			Policy:   config.NewStaticPolicyHolder(config.DefaultPolicy()),
		}),
		reviews: New(Params{
			Store:     store,
			Log:       zap.NewNop(),
			Clock:     clk,
			Repo:      repository.Provide(),
			Campaigns: campaignRepo,
		}),
	}

	ctx := context.Background()
	requester, err := f.profiles.EnsureUser(ctx, "tg:req")
	require.NoError(t, err)
	_, err = f.profiles.CreateRequesterProfile(ctx, profiledomain.CreateRequesterRequest{UserID: requester.ID, Name: "Cafe"})
	require.NoError(t, err)
	producer, err := f.profiles.EnsureUser(ctx, "tg:prod")
	require.NoError(t, err)
	_, err = f.profiles.CreateProducerProfile(ctx, profiledomain.CreateProducerRequest{
		UserID: producer.ID, Name: "Lens", Locations: []string{"almaty"}, Categories: []string{"photo"},
	})
	require.NoError(t, err)
	f.requester, f.producer = requester.ID, producer.ID
	return f
}

// selected creates a campaign with the producer already chosen.
func (f *fixture) selected(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()
	c, err := f.campaigns.CreateCampaign(ctx, campaigndomain.CreateCampaignRequest{
		RequesterUserID: f.requester, Title: "Menu photos", City: "Almaty", Categories: []string{"photo"},
	})
	require.NoError(t, err)
	o, err := f.campaigns.CreateOffer(ctx, campaigndomain.CreateOfferRequest{
		ProducerUserID: f.producer, CampaignID: c.ID, ProposedPrice: 120, Currency: "EUR",
	})
	require.NoError(t, err)
	ok, err := f.campaigns.SelectOffer(ctx, campaigndomain.SelectOfferRequest{OfferID: o.ID})
	require.NoError(t, err)
	require.True(t, ok)
	return c.ID
}

func TestReviewRequiresCompletion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	campaignID := f.selected(t)

	_, err := f.reviews.Create(ctx, domain.CreateRequest{CampaignID: campaignID, FromUserID: f.requester, Rating: 5})
	assert.ErrorIs(t, err, domain.ErrCampaignNotComplete)

	_, err = f.campaigns.MarkComplete(ctx, f.producer, campaignID)
	require.NoError(t, err)

	_, err = f.reviews.Create(ctx, domain.CreateRequest{CampaignID: campaignID, FromUserID: 987654, Rating: 5})
	assert.ErrorIs(t, err, campaigndomain.ErrForbidden)
	_, err = f.reviews.Create(ctx, domain.CreateRequest{CampaignID: campaignID, FromUserID: f.requester, Rating: 6})
	assert.ErrorIs(t, err, domain.ErrInvalidRating)
}

func TestReviewsUpdateRatingsAndMarkDone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i, rating := range []int{5, 4} {
		campaignID := f.selected(t)
		_, err := f.campaigns.MarkComplete(ctx, f.requester, campaignID)
		require.NoError(t, err)

		got, err := f.reviews.Create(ctx, domain.CreateRequest{
			CampaignID: campaignID, FromUserID: f.requester, Rating: rating, Comment: fmt.Sprintf(" job %d ", i),
		})
		require.NoError(t, err)
		assert.Equal(t, f.producer, got.ToUserID)
		assert.Equal(t, fmt.Sprintf("job %d", i), got.Comment)

		_, err = f.reviews.Create(ctx, domain.CreateRequest{CampaignID: campaignID, FromUserID: f.requester, Rating: 1})
		assert.ErrorIs(t, err, domain.ErrAlreadyReviewed)

		c, err := f.campaigns.GetCampaign(ctx, campaignID)
		require.NoError(t, err)
		assert.False(t, c.Done)

		back, err := f.reviews.Create(ctx, domain.CreateRequest{CampaignID: campaignID, FromUserID: f.producer, Rating: 3})
		require.NoError(t, err)
		assert.Equal(t, f.requester, back.ToUserID)

		c, err = f.campaigns.GetCampaign(ctx, campaignID)
		require.NoError(t, err)
		assert.True(t, c.Done)

		listed, err := f.reviews.ListByCampaign(ctx, campaignID)
		require.NoError(t, err)
		assert.Len(t, listed, 2)
	}

	producer, err := f.profiles.GetProducerByUser(ctx, f.producer)
	require.NoError(t, err)
	assert.Equal(t, 2, producer.RatingCount)
	assert.InDelta(t, 4.5, producer.Rating, 0.0001)

	requester, err := f.profiles.GetRequesterByUser(ctx, f.requester)
	require.NoError(t, err)
	assert.Equal(t, 2, requester.RatingCount)
	assert.InDelta(t, 3.0, requester.Rating, 0.0001)
}

func TestConcurrentReviewsKeepRatingConsistent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const n = 5
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = f.selected(t)
		_, err := f.campaigns.MarkComplete(ctx, f.producer, ids[i])
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(rating int, campaignID int64) {
			defer wg.Done()
			_, err := f.reviews.Create(ctx, domain.CreateRequest{CampaignID: campaignID, FromUserID: f.requester, Rating: rating})
			assert.NoError(t, err)
		}(i+1, id)
	}
	wg.Wait()

	producer, err := f.profiles.GetProducerByUser(ctx, f.producer)
	require.NoError(t, err)
	assert.Equal(t, n, producer.RatingCount)
	assert.InDelta(t, 3.0, producer.Rating, 0.0001)
}
