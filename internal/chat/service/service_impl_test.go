package service

import (
	"context"
	"testing"
	"time"

	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	campaignrepo "github.com/smallbiznis/matchhub/internal/campaign/repository"
	campaignservice "github.com/smallbiznis/matchhub/internal/campaign/service"
	"github.com/smallbiznis/matchhub/internal/chat/domain"
	"github.com/smallbiznis/matchhub/internal/chat/repository"
	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/config"
	ledgerdomain "github.com/smallbiznis/matchhub/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/matchhub/internal/ledger/repository"
	"github.com/smallbiznis/matchhub/internal/migration/migrationtest"
	notificationrepo "github.com/smallbiznis/matchhub/internal/notification/repository"
	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
	profilerepo "github.com/smallbiznis/matchhub/internal/profile/repository"
	profileservice "github.com/smallbiznis/matchhub/internal/profile/service"
	"github.com/smallbiznis/matchhub/internal/ratelimit"
	"github.com/smallbiznis/matchhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store     db.Store
	clock     *clock.FakeClock
	chat      domain.Service
	campaigns campaigndomain.Service
	ledger    ledgerdomain.Repository

	requester int64
	producer  int64
	campaign  campaigndomain.Campaign
	offer     campaigndomain.Offer
}

// setupSelected builds a campaign whose only offer has been selected.
func setupSelected(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := migrationtest.OpenSQLite(t)
	clk := clock.NewFakeClock(epoch)
	policy := config.NewStaticPolicyHolder(config.DefaultPolicy())
	profileRepo := profilerepo.Provide()
	campaignRepo := campaignrepo.Provide()
	ledger := ledgerrepo.Provide()

	profiles := profileservice.New(profileservice.Params{Store: store, Log: zap.NewNop(), Clock: clk, Repo: profileRepo})
	campaigns := campaignservice.New(campaignservice.Params{
		Store:    store,
		Log:      zap.NewNop(),
		Clock:    clk,
		Repo:     campaignRepo,
		Profiles: profileRepo,
		Counters: notificationrepo.Provide(),
		Ledger:   ledger,
		Limiter:  ratelimit.NewSlidingWindow(clk, time.Hour, 100),
		Policy:   policy,
	})

	requester, err := profiles.EnsureUser(ctx, "tg:requester")
	require.NoError(t, err)
	_, err = profiles.CreateRequesterProfile(ctx, profiledomain.CreateRequesterRequest{UserID: requester.ID, Name: "Brand", City: "Almaty"})
	require.NoError(t, err)
	producer, err := profiles.EnsureUser(ctx, "tg:producer")
	require.NoError(t, err)
	_, err = profiles.CreateProducerProfile(ctx, profiledomain.CreateProducerRequest{
		UserID: producer.ID, Name: "Studio", Locations: []string{"almaty"}, Categories: []string{"photo"},
	})
	require.NoError(t, err)

	c, err := campaigns.CreateCampaign(ctx, campaigndomain.CreateCampaignRequest{
		RequesterUserID: requester.ID, Title: "Catalog shoot", City: "Almaty", Categories: []string{"photo"},
	})
	require.NoError(t, err)
	o, err := campaigns.CreateOffer(ctx, campaigndomain.CreateOfferRequest{
		ProducerUserID: producer.ID, CampaignID: c.ID, ProposedPrice: 300, Currency: "KZT",
	})
	require.NoError(t, err)
	ok, err := campaigns.SelectOffer(ctx, campaigndomain.SelectOfferRequest{OfferID: o.ID, RequesterUserID: requester.ID})
	require.NoError(t, err)
	require.True(t, ok)

	return &fixture{
		store: store,
		clock: clk,
		chat: New(Params{
			Store:     store,
			Log:       zap.NewNop(),
			Clock:     clk,
			Repo:      repository.Provide(),
			Campaigns: campaignRepo,
			Ledger:    ledger,
			Policy:    policy,
		}),
		campaigns: campaigns,
		ledger:    ledger,
		requester: requester.ID,
		producer:  producer.ID,
		campaign:  c,
		offer:     o,
	}
}

func TestOpenForSelectionIsIdempotent(t *testing.T) {
	f := setupSelected(t)
	ctx := context.Background()

	first, err := f.chat.OpenForSelection(ctx, f.offer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.requester, first.RequesterUserID)
	assert.Equal(t, f.producer, first.ProducerUserID)
	assert.False(t, first.ProducerConfirmed)
	assert.True(t, epoch.Add(24*time.Hour).Equal(f.chat.Deadline(first)))

	second, err := f.chat.OpenForSelection(ctx, f.offer.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	c, err := f.campaigns.GetCampaign(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigndomain.StatusContactShared, c.Status)

	var txns []ledgerdomain.Transaction
	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		txns, err = f.ledger.ListByCampaign(ctx, tx, f.campaign.ID)
		return err
	}))
	var unlocks int
	for _, txn := range txns {
		if txn.Type == ledgerdomain.TypeContactUnlock {
			unlocks++
		}
	}
	assert.Equal(t, 1, unlocks)
}

func TestOpenForSelectionRequiresSelectedOffer(t *testing.T) {
	f := setupSelected(t)
	ctx := context.Background()

	_, err := f.chat.OpenForSelection(ctx, 9999)
	assert.ErrorIs(t, err, campaigndomain.ErrOfferNotFound)

	_, err = f.chat.OpenForSelection(ctx, f.offer.ID)
	require.NoError(t, err)
	f.clock.Advance(25 * time.Hour)
	_, err = f.chat.LapseExpired(ctx)
	require.NoError(t, err)

	// the offer lost its selection, so the old channel is not handed out again
	_, err = f.chat.OpenForSelection(ctx, f.offer.ID)
	assert.ErrorIs(t, err, domain.ErrNotSelected)
}

func TestConfirmWithinWindow(t *testing.T) {
	f := setupSelected(t)
	ctx := context.Background()
	ch, err := f.chat.OpenForSelection(ctx, f.offer.ID)
	require.NoError(t, err)

	_, err = f.chat.Confirm(ctx, ch.ID, f.requester)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	f.clock.Advance(23 * time.Hour)
	confirmed, err := f.chat.Confirm(ctx, ch.ID, f.producer)
	require.NoError(t, err)
	assert.True(t, confirmed.ProducerConfirmed)
	require.NotNil(t, confirmed.ProducerConfirmedAt)
	assert.False(t, f.chat.IsLapsed(confirmed))

	f.clock.Advance(2 * time.Hour)
	again, err := f.chat.Confirm(ctx, ch.ID, f.producer)
	require.NoError(t, err)
	assert.True(t, confirmed.ProducerConfirmedAt.Equal(*again.ProducerConfirmedAt))

	lapsed, err := f.chat.LapseExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, lapsed)
}

func TestConfirmAfterDeadlineFails(t *testing.T) {
	f := setupSelected(t)
	ctx := context.Background()
	ch, err := f.chat.OpenForSelection(ctx, f.offer.ID)
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour + time.Second)
	assert.True(t, f.chat.IsLapsed(ch))
	_, err = f.chat.Confirm(ctx, ch.ID, f.producer)
	assert.ErrorIs(t, err, domain.ErrConfirmationLapsed)
}

func TestLapseExpiredReopensCampaign(t *testing.T) {
	f := setupSelected(t)
	ctx := context.Background()
	ch, err := f.chat.OpenForSelection(ctx, f.offer.ID)
	require.NoError(t, err)

	lapsed, err := f.chat.LapseExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, lapsed)

	f.clock.Advance(25 * time.Hour)
	lapsed, err = f.chat.LapseExpired(ctx)
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	assert.Equal(t, ch.ID, lapsed[0].ChannelID)
	assert.Equal(t, f.producer, lapsed[0].ProducerUserID)

	c, err := f.campaigns.GetCampaign(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigndomain.StatusOpen, c.Status)
	assert.Nil(t, c.SelectedProducerID)

	o, err := f.campaigns.GetOffer(ctx, f.offer.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigndomain.OfferStatusRejected, o.Status)

	again, err := f.chat.LapseExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestTouchByParticipantsOnly(t *testing.T) {
	f := setupSelected(t)
	ctx := context.Background()
	ch, err := f.chat.OpenForSelection(ctx, f.offer.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	touched, err := f.chat.Touch(ctx, ch.ID, f.requester)
	require.NoError(t, err)
	require.NotNil(t, touched.LastMessageAt)
	assert.True(t, epoch.Add(time.Minute).Equal(*touched.LastMessageAt))

	_, err = f.chat.Touch(ctx, ch.ID, 424242)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.chat.Get(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageAt)
}

func TestOpenMissingRecoversUnopenedSelection(t *testing.T) {
	f := setupSelected(t)
	ctx := context.Background()

	// The selection committed but its channel was never opened.
	f.clock.Advance(72 * time.Hour)
	lapsed, err := f.chat.LapseExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, lapsed)

	opened, err := f.chat.OpenMissing(ctx)
	require.NoError(t, err)
	require.Len(t, opened, 1)
	assert.Equal(t, f.offer.ID, opened[0].OfferID)
	assert.True(t, f.clock.Now().Equal(opened[0].CreatedAt))

	c, err := f.campaigns.GetCampaign(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigndomain.StatusContactShared, c.Status)

	again, err := f.chat.OpenMissing(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	f.clock.Advance(25 * time.Hour)
	lapsed, err = f.chat.LapseExpired(ctx)
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	assert.Equal(t, opened[0].ID, lapsed[0].ChannelID)

	c, err = f.campaigns.GetCampaign(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigndomain.StatusOpen, c.Status)
}

func TestOpenPendingOnlyForUnopenedSelection(t *testing.T) {
	f := setupSelected(t)
	ctx := context.Background()

	_, ok, err := f.chat.OpenPending(ctx, f.offer.ID, f.producer)
	require.NoError(t, err)
	assert.False(t, ok, "only the requester can resume the selection")

	ch, ok, err := f.chat.OpenPending(ctx, f.offer.ID, f.requester)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.offer.ID, ch.OfferID)

	_, ok, err = f.chat.OpenPending(ctx, f.offer.ID, f.requester)
	require.NoError(t, err)
	assert.False(t, ok, "an opened channel is no longer pending")
}
