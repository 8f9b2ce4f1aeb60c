package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/matchhub/internal/campaign/domain"
	"github.com/smallbiznis/matchhub/internal/campaign/repository"
	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/config"
	ledgerdomain "github.com/smallbiznis/matchhub/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/matchhub/internal/ledger/repository"
	"github.com/smallbiznis/matchhub/internal/migration/migrationtest"
	notificationdomain "github.com/smallbiznis/matchhub/internal/notification/domain"
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

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    db.Store
	clock    *clock.FakeClock
	svc      domain.Service
	profiles profiledomain.Service
	counters notificationdomain.Repository
	ledger   ledgerdomain.Repository
}

func setup(t *testing.T, store db.Store) *fixture {
	t.Helper()
	clk := clock.NewFakeClock(epoch)
	policy := config.DefaultPolicy()
	profileRepo := profilerepo.Provide()
	counters := notificationrepo.Provide()
	ledger := ledgerrepo.Provide()

	return &fixture{
		store: store,
		clock: clk,
		svc: New(Params{
			Store:    store,
			Log:      zap.NewNop(),
			Clock:    clk,
			Repo:     repository.Provide(),
			Profiles: profileRepo,
			Counters: counters,
			Ledger:   ledger,
			Limiter:  ratelimit.NewSlidingWindow(clk, policy.RateLimit.Window, policy.RateLimit.SweepEvery),
			Policy:   config.NewStaticPolicyHolder(policy),
		}),
		profiles: profileservice.New(profileservice.Params{
			Store: store,
			Log:   zap.NewNop(),
			Clock: clk,
			Repo:  profileRepo,
		}),
		counters: counters,
		ledger:   ledger,
	}
}

func (f *fixture) requester(t *testing.T, external string) int64 {
	t.Helper()
	ctx := context.Background()
	user, err := f.profiles.EnsureUser(ctx, external)
	require.NoError(t, err)
	_, err = f.profiles.CreateRequesterProfile(ctx, profiledomain.CreateRequesterRequest{
		UserID: user.ID, Name: "Requester " + external, City: "Almaty",
	})
	require.NoError(t, err)
	return user.ID
}

func (f *fixture) producer(t *testing.T, external string) int64 {
	t.Helper()
	ctx := context.Background()
	user, err := f.profiles.EnsureUser(ctx, external)
	require.NoError(t, err)
	_, err = f.profiles.CreateProducerProfile(ctx, profiledomain.CreateProducerRequest{
		UserID:     user.ID,
		Name:       "Producer " + external,
		Locations:  []string{"Almaty"},
		Categories: []string{"video"},
	})
	require.NoError(t, err)
	return user.ID
}

func (f *fixture) campaign(t *testing.T, requesterUserID int64, deadline *time.Time) domain.Campaign {
	t.Helper()
	c, err := f.svc.CreateCampaign(context.Background(), domain.CreateCampaignRequest{
		RequesterUserID: requesterUserID,
		Title:           "Promo video",
		City:            "Almaty",
		Categories:      []string{"Video"},
		Deadline:        deadline,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) offer(t *testing.T, producerUserID, campaignID int64, price float64) domain.Offer {
	t.Helper()
	o, err := f.svc.CreateOffer(context.Background(), domain.CreateOfferRequest{
		ProducerUserID: producerUserID,
		CampaignID:     campaignID,
		ProposedPrice:  price,
		Currency:       "usd",
		ReadyInDays:    5,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) counter(t *testing.T, userID int64, kind notificationdomain.Kind) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx db.Tx) error {
		c, err := f.counters.Get(ctx, tx, userID, kind)
		if c != nil {
			n = c.UnseenCount
		}
		return err
	}))
	return n
}

func TestCreateCampaignBumpsMatchingProducers(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	req := f.requester(t, "tg:r")
	p1 := f.producer(t, "tg:p1")
	p2 := f.producer(t, "tg:p2")

	c := f.campaign(t, req, nil)
	assert.Equal(t, domain.StatusOpen, c.Status)
	assert.Equal(t, []string{"video"}, c.Categories)
	assert.Equal(t, domain.BudgetNegotiable, c.BudgetType)

	assert.Equal(t, int64(1), f.counter(t, p1, notificationdomain.KindNewCampaigns))
	assert.Equal(t, int64(1), f.counter(t, p2, notificationdomain.KindNewCampaigns))
	assert.Zero(t, f.counter(t, req, notificationdomain.KindNewCampaigns))

	f.offer(t, p1, c.ID, 100)
	assert.Equal(t, int64(1), f.counter(t, req, notificationdomain.KindNewOffers))
}

func TestCreateCampaignValidation(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	req := f.requester(t, "tg:r")
	ctx := context.Background()
	past := epoch.Add(-time.Minute)
	budget := 0.0

	cases := []struct {
		name string
		req  domain.CreateCampaignRequest
		want error
	}{
		{"empty title", domain.CreateCampaignRequest{RequesterUserID: req, City: "x", Categories: []string{"a"}}, domain.ErrInvalidTitle},
		{"no city", domain.CreateCampaignRequest{RequesterUserID: req, Title: "t", Categories: []string{"a"}}, domain.ErrInvalidCity},
		{"no categories", domain.CreateCampaignRequest{RequesterUserID: req, Title: "t", City: "x"}, domain.ErrInvalidCategories},
		{"past deadline", domain.CreateCampaignRequest{RequesterUserID: req, Title: "t", City: "x", Categories: []string{"a"}, Deadline: &past}, domain.ErrInvalidDeadline},
		{"fixed without value", domain.CreateCampaignRequest{RequesterUserID: req, Title: "t", City: "x", Categories: []string{"a"}, BudgetType: domain.BudgetFixed, BudgetValue: &budget}, domain.ErrInvalidBudget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateCampaign(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	producerOnly := f.producer(t, "tg:p")
	_, err := f.svc.CreateCampaign(ctx, domain.CreateCampaignRequest{
		RequesterUserID: producerOnly, Title: "t", City: "x", Categories: []string{"a"},
	})
	assert.ErrorIs(t, err, domain.ErrRequesterProfileNeeded)
}

func TestCreateCampaignRateLimited(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	req := f.requester(t, "tg:r")

	for i := 0; i < 10; i++ {
		f.campaign(t, req, nil)
		f.clock.Advance(time.Second)
	}
	_, err := f.svc.CreateCampaign(context.Background(), domain.CreateCampaignRequest{
		RequesterUserID: req, Title: "one more", City: "Almaty", Categories: []string{"video"},
	})
	require.ErrorIs(t, err, domain.ErrRateLimited)
	var rl *domain.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, time.Hour-10*time.Second, rl.RetryAfter)

	f.clock.Advance(time.Hour)
	f.campaign(t, req, nil)
}

func TestCreateOfferRules(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	ctx := context.Background()
	req := f.requester(t, "tg:r")
	p := f.producer(t, "tg:p")
	c := f.campaign(t, req, nil)

	f.offer(t, p, c.ID, 50)
	_, err := f.svc.CreateOffer(ctx, domain.CreateOfferRequest{ProducerUserID: p, CampaignID: c.ID, ProposedPrice: 60, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrDuplicateOffer)

	// a dual-role user cannot bid on their own campaign
	_, err = f.profiles.CreateProducerProfile(ctx, profiledomain.CreateProducerRequest{
		UserID: req, Name: "Self", Locations: []string{"almaty"}, Categories: []string{"video"},
	})
	require.NoError(t, err)
	_, err = f.svc.CreateOffer(ctx, domain.CreateOfferRequest{ProducerUserID: req, CampaignID: c.ID, ProposedPrice: 60, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrSelfOffer)

	_, err = f.svc.CreateOffer(ctx, domain.CreateOfferRequest{ProducerUserID: p, CampaignID: c.ID, ProposedPrice: 0, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	_, err = f.svc.CreateOffer(ctx, domain.CreateOfferRequest{ProducerUserID: p, CampaignID: c.ID, ProposedPrice: 5, Currency: "US"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
	_, err = f.svc.CreateOffer(ctx, domain.CreateOfferRequest{ProducerUserID: p, CampaignID: 9999, ProposedPrice: 5, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)

	_, err = f.svc.Cancel(ctx, req, c.ID)
	require.NoError(t, err)
	other := f.producer(t, "tg:p2")
	_, err = f.svc.CreateOffer(ctx, domain.CreateOfferRequest{ProducerUserID: other, CampaignID: c.ID, ProposedPrice: 5, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrCampaignNotOpen)
}

func TestBannedUserCannotCreate(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	ctx := context.Background()
	req := f.requester(t, "tg:r")
	_, err := f.profiles.Ban(ctx, profiledomain.BanRequest{UserID: req, Reason: "spam"})
	require.NoError(t, err)

	_, err = f.svc.CreateCampaign(ctx, domain.CreateCampaignRequest{
		RequesterUserID: req, Title: "t", City: "Almaty", Categories: []string{"video"},
	})
	assert.ErrorIs(t, err, profiledomain.ErrUserBanned)
}

func TestRefusedCreatesSpendNoQuota(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	ctx := context.Background()
	create := domain.CreateCampaignRequest{Title: "t", City: "Almaty", Categories: []string{"video"}}

	banned := f.requester(t, "tg:banned")
	_, err := f.profiles.Ban(ctx, profiledomain.BanRequest{UserID: banned, Reason: "spam"})
	require.NoError(t, err)
	create.RequesterUserID = banned
	for i := 0; i < 15; i++ {
		_, err = f.svc.CreateCampaign(ctx, create)
		require.ErrorIs(t, err, profiledomain.ErrUserBanned)
	}
	_, err = f.profiles.Unban(ctx, banned)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		f.campaign(t, banned, nil)
	}

	// producer-only user: no requester profile yet
	p := f.producer(t, "tg:p")
	create.RequesterUserID = p
	for i := 0; i < 15; i++ {
		_, err = f.svc.CreateCampaign(ctx, create)
		require.ErrorIs(t, err, domain.ErrRequesterProfileNeeded)
	}
	_, err = f.profiles.CreateRequesterProfile(ctx, profiledomain.CreateRequesterRequest{UserID: p, Name: "Both", City: "Almaty"})
	require.NoError(t, err)
	c, err := f.svc.CreateCampaign(ctx, create)
	require.NoError(t, err)

	nobody, err := f.profiles.EnsureUser(ctx, "tg:nobody")
	require.NoError(t, err)
	offer := domain.CreateOfferRequest{ProducerUserID: nobody.ID, CampaignID: c.ID, ProposedPrice: 10, Currency: "USD"}
	for i := 0; i < 35; i++ {
		_, err = f.svc.CreateOffer(ctx, offer)
		require.ErrorIs(t, err, domain.ErrProducerProfileNeeded)
	}
	_, err = f.profiles.CreateProducerProfile(ctx, profiledomain.CreateProducerRequest{
		UserID: nobody.ID, Name: "Late", Locations: []string{"Almaty"}, Categories: []string{"video"},
	})
	require.NoError(t, err)
	_, err = f.svc.CreateOffer(ctx, offer)
	require.NoError(t, err)
}

func TestSelectionScenario(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	ctx := context.Background()
	req := f.requester(t, "tg:r")
	p1 := f.producer(t, "tg:p1")
	p2 := f.producer(t, "tg:p2")
	c := f.campaign(t, req, nil)
	o1 := f.offer(t, p1, c.ID, 50)
	o2 := f.offer(t, p2, c.ID, 40)

	ok, err := f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: o2.ID, RequesterUserID: req})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := f.svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProducerSelected, got.Status)
	require.NotNil(t, got.SelectedProducerID)
	assert.Equal(t, o2.ProducerID, *got.SelectedProducerID)

	first, err := f.svc.GetOffer(ctx, o1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusRejected, first.Status)
	second, err := f.svc.GetOffer(ctx, o2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusSelected, second.Status)

	ok, err = f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: o1.ID, RequesterUserID: req})
	require.NoError(t, err)
	assert.False(t, ok)

	var txns []ledgerdomain.Transaction
	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		txns, err = f.ledger.ListByCampaign(ctx, tx, c.ID)
		return err
	}))
	require.Len(t, txns, 1)
	assert.Equal(t, ledgerdomain.TypeAccess, txns[0].Type)

	_, err = f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: o1.ID, RequesterUserID: p1})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: 9999})
	assert.ErrorIs(t, err, domain.ErrOfferNotFound)
}

func TestConcurrentSelectionHasOneWinner(t *testing.T) {
	for name, store := range migrationtest.OpenStores(t) {
		t.Run(name, func(t *testing.T) {
			f := setup(t, store)
			ctx := context.Background()
			req := f.requester(t, "tg:r")
			c := f.campaign(t, req, nil)

			const n = 8
			offers := make([]domain.Offer, n)
			for i := range offers {
				p := f.producer(t, fmt.Sprintf("tg:p%d", i))
				offers[i] = f.offer(t, p, c.ID, float64(10+i))
			}

			results := make([]bool, n)
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := range offers {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					ok, err := f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: offers[i].ID})
					assert.NoError(t, err)
					results[i] = ok
				}(i)
			}
			close(start)
			wg.Wait()

			winner := -1
			for i, ok := range results {
				if ok {
					require.Equal(t, -1, winner, "more than one winner")
					winner = i
				}
			}
			require.NotEqual(t, -1, winner)

			got, err := f.svc.GetCampaign(ctx, c.ID)
			require.NoError(t, err)
			require.NotNil(t, got.SelectedProducerID)
			assert.Equal(t, offers[winner].ProducerID, *got.SelectedProducerID)

			listed, err := f.svc.ListOffers(ctx, c.ID)
			require.NoError(t, err)
			selected := 0
			for _, o := range listed {
				if o.Status == domain.OfferStatusSelected {
					selected++
					assert.Equal(t, offers[winner].ID, o.ID)
				} else {
					assert.Equal(t, domain.OfferStatusRejected, o.Status)
				}
			}
			assert.Equal(t, 1, selected)
		})
	}
}

func TestSelectionLosesToCancel(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	ctx := context.Background()
	req := f.requester(t, "tg:r")
	p := f.producer(t, "tg:p")
	c := f.campaign(t, req, nil)
	o := f.offer(t, p, c.ID, 30)

	_, err := f.svc.Cancel(ctx, p, c.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	cancelled, err := f.svc.Cancel(ctx, req, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	ok, err := f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: o.ID})
	require.NoError(t, err)
	assert.False(t, ok)

	// the losing call wrote nothing
	got, err := f.svc.GetOffer(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusActive, got.Status)

	_, err = f.svc.Cancel(ctx, req, c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestConcurrentSelectAndCancelHaveOneWinner(t *testing.T) {
	for name, store := range migrationtest.OpenStores(t) {
		t.Run(name, func(t *testing.T) {
			f := setup(t, store)
			ctx := context.Background()
			req := f.requester(t, "tg:r")
			p := f.producer(t, "tg:p")
			c := f.campaign(t, req, nil)
			o := f.offer(t, p, c.ID, 30)

			var (
				wg        sync.WaitGroup
				selected  bool
				cancelErr error
			)
			start := make(chan struct{})
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				ok, err := f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: o.ID})
				assert.NoError(t, err)
				selected = ok
			}()
			go func() {
				defer wg.Done()
				<-start
				_, cancelErr = f.svc.Cancel(ctx, req, c.ID)
			}()
			close(start)
			wg.Wait()

			cancelled := cancelErr == nil
			if !cancelled {
				require.ErrorIs(t, cancelErr, domain.ErrInvalidTransition)
			}
			require.NotEqual(t, selected, cancelled, "exactly one of select and cancel must win")

			got, err := f.svc.GetCampaign(ctx, c.ID)
			require.NoError(t, err)
			offer, err := f.svc.GetOffer(ctx, o.ID)
			require.NoError(t, err)
			if selected {
				assert.Equal(t, domain.StatusProducerSelected, got.Status)
				assert.Equal(t, domain.OfferStatusSelected, offer.Status)
			} else {
				assert.Equal(t, domain.StatusCancelled, got.Status)
				assert.Nil(t, got.SelectedProducerID)
				assert.Equal(t, domain.OfferStatusActive, offer.Status)
			}
		})
	}
}

func TestConcurrentSelectAndSweepHaveOneWinner(t *testing.T) {
	for name, store := range migrationtest.OpenStores(t) {
		t.Run(name, func(t *testing.T) {
			f := setup(t, store)
			ctx := context.Background()
			req := f.requester(t, "tg:r")
			p := f.producer(t, "tg:p")
			deadline := epoch.Add(time.Hour)
			c := f.campaign(t, req, &deadline)
			o := f.offer(t, p, c.ID, 30)
			f.clock.Advance(2 * time.Hour)

			var (
				wg       sync.WaitGroup
				selected bool
				expired  []domain.ExpiredCampaign
			)
			start := make(chan struct{})
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				ok, err := f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: o.ID})
				assert.NoError(t, err)
				selected = ok
			}()
			go func() {
				defer wg.Done()
				<-start
				var err error
				expired, err = f.svc.SweepExpired(ctx)
				assert.NoError(t, err)
			}()
			close(start)
			wg.Wait()

			swept := len(expired) == 1
			require.LessOrEqual(t, len(expired), 1)
			require.NotEqual(t, selected, swept, "exactly one of select and sweep must win")

			got, err := f.svc.GetCampaign(ctx, c.ID)
			require.NoError(t, err)
			offer, err := f.svc.GetOffer(ctx, o.ID)
			require.NoError(t, err)
			if selected {
				assert.Equal(t, domain.StatusProducerSelected, got.Status)
				assert.Equal(t, domain.OfferStatusSelected, offer.Status)
			} else {
				assert.Equal(t, domain.StatusExpired, got.Status)
				assert.Equal(t, domain.OfferStatusRejected, offer.Status)
			}
		})
	}
}

func TestSweepExpiresOnlySelectableCampaigns(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	ctx := context.Background()
	req := f.requester(t, "tg:r")
	p1 := f.producer(t, "tg:p1")
	p2 := f.producer(t, "tg:p2")

	deadline := epoch.Add(time.Hour)
	stale := f.campaign(t, req, &deadline)
	o1 := f.offer(t, p1, stale.ID, 20)
	f.offer(t, p2, stale.ID, 25)

	taken := f.campaign(t, req, &deadline)
	won := f.offer(t, p1, taken.ID, 30)
	ok, err := f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: won.ID})
	require.NoError(t, err)
	require.True(t, ok)

	fresh := f.campaign(t, req, nil)

	expired, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	f.clock.Advance(2 * time.Hour)
	expired, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].CampaignID)
	assert.Equal(t, req, expired[0].RequesterUserID)
	assert.ElementsMatch(t, []int64{p1, p2}, expired[0].ProducerUserIDs)

	got, err := f.svc.GetCampaign(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	o, err := f.svc.GetOffer(ctx, o1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusRejected, o.Status)

	got, err = f.svc.GetCampaign(ctx, taken.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProducerSelected, got.Status)
	got, err = f.svc.GetCampaign(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)

	again, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMarkCompleteIsIdempotent(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	ctx := context.Background()
	req := f.requester(t, "tg:r")
	p := f.producer(t, "tg:p")
	stranger := f.requester(t, "tg:x")
	c := f.campaign(t, req, nil)
	o := f.offer(t, p, c.ID, 30)

	_, err := f.svc.MarkComplete(ctx, req, c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	ok, err := f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: o.ID})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.MarkComplete(ctx, stranger, c.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	first, err := f.svc.MarkComplete(ctx, p, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, first.Status)
	assert.True(t, first.ProducerCompleted)
	assert.False(t, first.RequesterCompleted)

	again, err := f.svc.MarkComplete(ctx, p, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first.UpdatedAt, again.UpdatedAt)

	both, err := f.svc.MarkComplete(ctx, req, c.ID)
	require.NoError(t, err)
	assert.True(t, both.RequesterCompleted)
	assert.True(t, both.ProducerCompleted)
	assert.Equal(t, domain.StatusCompleted, both.Status)
}

func TestStartWorkRequiresSharedContact(t *testing.T) {
	f := setup(t, migrationtest.OpenSQLite(t))
	ctx := context.Background()
	req := f.requester(t, "tg:r")
	p := f.producer(t, "tg:p")
	c := f.campaign(t, req, nil)
	o := f.offer(t, p, c.ID, 30)
	ok, err := f.svc.SelectOffer(ctx, domain.SelectOfferRequest{OfferID: o.ID})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.StartWork(ctx, req, c.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.StartWork(ctx, p, c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		_, err := repository.Provide().MarkContactShared(ctx, tx, c.ID, f.clock.Now())
		return err
	}))
	got, err := f.svc.StartWork(ctx, p, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}
